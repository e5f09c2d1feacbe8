package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cyris/internal/models"
)

const roundTripColumns = `id, request_id, owner_kind, owner_id, chat_id, selected_model, resolved_model,
	routed, fallback, persisted, latency_ms, error_message, created_at`

// UsageRepository handles round-trip audit records
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// prepare fills the id and timestamp of a record about to be written
func prepare(record *models.RoundTripRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Fallback == "" {
		record.Fallback = models.FallbackNone
	}
}

// Create inserts a single round-trip record
func (r *UsageRepository) Create(ctx context.Context, record *models.RoundTripRecord) error {
	prepare(record)

	query := `
		INSERT INTO round_trips (` + roundTripColumns + `)
		VALUES (:id, :request_id, :owner_kind, :owner_id, :chat_id, :selected_model, :resolved_model,
			:routed, :fallback, :persisted, :latency_ms, :error_message, :created_at)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.conn.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to create round trip record: %w", err)
	}
	return nil
}

// CreateBatch inserts records in one transaction. Either all rows land or none.
func (r *UsageRepository) CreateBatch(ctx context.Context, records []*models.RoundTripRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO round_trips (` + roundTripColumns + `)
		VALUES (:id, :request_id, :owner_kind, :owner_id, :chat_id, :selected_model, :resolved_model,
			:routed, :fallback, :persisted, :latency_ms, :error_message, :created_at)
		ON CONFLICT (id) DO NOTHING`

	for _, record := range records {
		prepare(record)
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("failed to insert round trip record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a round-trip record
func (r *UsageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoundTripRecord, error) {
	var record models.RoundTripRecord
	query := `SELECT ` + roundTripColumns + ` FROM round_trips WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &record, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoundTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round trip record: %w", err)
	}
	return &record, nil
}

// ListByOwner returns an owner's most recent round trips
func (r *UsageRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.RoundTripRecord, error) {
	query := `
		SELECT ` + roundTripColumns + `
		FROM round_trips
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var records []*models.RoundTripRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list round trip records: %w", err)
	}
	return records, nil
}

// FallbackCounts counts round trips per fallback reason since a point in time
func (r *UsageRepository) FallbackCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT fallback, COUNT(*) AS total
		FROM round_trips
		WHERE created_at >= $1
		GROUP BY fallback`

	var rows []struct {
		Fallback string `db:"fallback"`
		Total    int    `db:"total"`
	}
	if err := r.db.conn.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to count fallbacks: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Fallback] = row.Total
	}
	return counts, nil
}
