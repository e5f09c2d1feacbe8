package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cyris/internal/chat"
	"cyris/internal/middleware"
	"cyris/internal/models"
	"cyris/internal/utils"
)

const noChatsText = "No chats to migrate"

// MigrateRequest is the body of POST /api/chats/migrate. Chats are decoded
// one by one so a malformed entry fails alone.
type MigrateRequest struct {
	LocalChats []json.RawMessage `json:"localChats"`
}

// MigrateResponse reports a migration run
type MigrateResponse struct {
	Message       string `json:"message"`
	MigratedCount int    `json:"migratedCount"`
	SkippedCount  int    `json:"skippedCount"`
	FailedCount   int    `json:"failedCount"`
}

// handleMigrateChats handles POST /api/chats/migrate. Chats in the body are
// imported into the caller's account. With none in the body, a guest
// session sent alongside the bearer token is migrated from the server-side
// guest store instead.
func (d *Dependencies) handleMigrateChats(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := mustSession(r)
	dst := d.Chats.ForUser(session.UserID)

	var report chat.Report
	switch {
	case len(req.LocalChats) > 0:
		chats, failed := decodeLocalChats(req.LocalChats)
		report = d.Migrator.Migrate(r.Context(), dst, chats)
		report.Failed += failed
		d.Metrics.AddMigratedChats("failed", failed)

	case session.GuestToken != "":
		guest, err := d.Guests.Open(r.Context(), session.GuestToken)
		if err != nil {
			d.respondWithStoreError(w, r, "migrate chats", err)
			return
		}
		report, err = d.Migrator.MigrateGuest(r.Context(), dst, guest)
		if errors.Is(err, chat.ErrNoChats) {
			utils.RespondWithJSON(w, http.StatusOK, MigrateResponse{Message: noChatsText})
			return
		}
		if err != nil {
			d.respondWithStoreError(w, r, "migrate chats", err)
			return
		}

	default:
		utils.RespondWithJSON(w, http.StatusOK, MigrateResponse{Message: noChatsText})
		return
	}

	if report.Err != nil {
		d.log().Warn("Some chats were not migrated",
			"request_id", middleware.GetRequestID(r), "failed", report.Failed, "error", report.Err)
	}

	utils.RespondWithJSON(w, http.StatusOK, MigrateResponse{
		Message:       fmt.Sprintf("Successfully migrated %d chats", report.Migrated),
		MigratedCount: report.Migrated,
		SkippedCount:  report.Skipped,
		FailedCount:   report.Failed,
	})
}

func decodeLocalChats(raw []json.RawMessage) ([]*models.Chat, int) {
	chats := make([]*models.Chat, 0, len(raw))
	failed := 0
	for _, item := range raw {
		var c models.Chat
		if err := json.Unmarshal(item, &c); err != nil {
			failed++
			continue
		}
		chats = append(chats, &c)
	}
	return chats, failed
}
