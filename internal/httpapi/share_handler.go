package httpapi

import (
	"errors"
	"net/http"

	"cyris/internal/chat"
	"cyris/internal/storage"
	"cyris/internal/utils"
)

// shareAttempts bounds retries on the unlikely share id collision
const shareAttempts = 3

// ShareResponse is returned by the share and unshare routes
type ShareResponse struct {
	Success  bool   `json:"success"`
	IsShared bool   `json:"isShared"`
	ShareID  string `json:"shareId,omitempty"`
	ShareURL string `json:"shareUrl,omitempty"`
}

// handleShareChat handles POST /api/chats/{id}/share. Sharing an already
// shared chat returns its existing link.
func (d *Dependencies) handleShareChat(w http.ResponseWriter, r *http.Request) {
	chats := d.Chats.ForUser(mustSession(r).UserID)
	id := r.PathValue("id")

	var err error
	for attempt := 0; attempt < shareAttempts; attempt++ {
		shared, shareErr := chats.Share(r.Context(), id, chat.NewShareID())
		if shareErr == nil {
			shareID := utils.StringPtrValue(shared.ShareID)
			utils.RespondWithJSON(w, http.StatusOK, ShareResponse{
				Success:  true,
				IsShared: true,
				ShareID:  shareID,
				ShareURL: d.shareURL(shareID),
			})
			return
		}
		err = shareErr
		if !errors.Is(shareErr, storage.ErrShareIDTaken) {
			break
		}
	}

	d.respondWithStoreError(w, r, "share chat", err)
}

// handleUnshareChat handles DELETE /api/chats/{id}/share
func (d *Dependencies) handleUnshareChat(w http.ResponseWriter, r *http.Request) {
	chats := d.Chats.ForUser(mustSession(r).UserID)

	if _, err := chats.Unshare(r.Context(), r.PathValue("id")); err != nil {
		d.respondWithStoreError(w, r, "unshare chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ShareResponse{Success: true, IsShared: false})
}

func (d *Dependencies) shareURL(shareID string) string {
	base := d.ShareBaseURL
	if base == "" {
		base = "http://localhost:3000"
	}
	return base + "/shared/" + shareID
}
