package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner kinds recorded on round trips
const (
	OwnerKindUser  = "user"
	OwnerKindGuest = "guest"
)

// Fallback reasons recorded on round trips
const (
	FallbackNone          = "none"
	FallbackRouterText    = "router_text"
	FallbackUnknownTarget = "unknown_target"
	FallbackError         = "error"
)

// RoundTripRecord is the audit row written for every send-message round trip
type RoundTripRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RequestID     string    `db:"request_id" json:"request_id"`
	OwnerKind     string    `db:"owner_kind" json:"owner_kind"`
	OwnerID       string    `db:"owner_id" json:"owner_id"`
	ChatID        string    `db:"chat_id" json:"chat_id"`
	SelectedModel string    `db:"selected_model" json:"selected_model"`
	ResolvedModel string    `db:"resolved_model" json:"resolved_model"`
	Routed        bool      `db:"routed" json:"routed"`
	Fallback      string    `db:"fallback" json:"fallback"`
	Persisted     bool      `db:"persisted" json:"persisted"`
	LatencyMS     int       `db:"latency_ms" json:"latency_ms"`
	ErrorMessage  string    `db:"error_message" json:"error_message"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
