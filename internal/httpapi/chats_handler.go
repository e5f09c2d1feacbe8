package httpapi

import (
	"net/http"
	"strings"
	"time"

	"cyris/internal/chat"
	"cyris/internal/models"
	"cyris/internal/utils"
)

// CreateChatRequest is the body of POST /api/chats
type CreateChatRequest struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages models.Messages `json:"messages"`
}

// UpdateChatRequest is the body of PUT /api/chats/{id}
type UpdateChatRequest struct {
	Messages models.Messages `json:"messages"`
}

// SuccessResponse acknowledges an operation without a payload
type SuccessResponse struct {
	Success bool `json:"success"`
}

// handleListChats handles GET /api/chats
func (d *Dependencies) handleListChats(w http.ResponseWriter, r *http.Request) {
	store, err := d.storeFor(r.Context(), mustSession(r))
	if err != nil {
		d.respondWithStoreError(w, r, "list chats", err)
		return
	}

	chats, err := store.List(r.Context())
	if err != nil {
		d.respondWithStoreError(w, r, "list chats", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat.ForDisplayAll(chats))
}

// handleGetChat handles GET /api/chats/{id}
func (d *Dependencies) handleGetChat(w http.ResponseWriter, r *http.Request) {
	store, err := d.storeFor(r.Context(), mustSession(r))
	if err != nil {
		d.respondWithStoreError(w, r, "get chat", err)
		return
	}

	c, err := store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		d.respondWithStoreError(w, r, "get chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat.ForDisplay(c))
}

// handleCreateChat handles POST /api/chats. A missing id is generated and
// a missing title is derived from the first user message.
func (d *Dependencies) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.ID) == "" {
		req.ID = chat.NewChatID(time.Now())
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = chat.TitleFromPrompt(firstUserPrompt(req.Messages))
	}
	if req.Messages == nil {
		req.Messages = models.Messages{}
	}

	store, err := d.storeFor(r.Context(), mustSession(r))
	if err != nil {
		d.respondWithStoreError(w, r, "create chat", err)
		return
	}

	created, err := store.Create(r.Context(), &models.Chat{
		ID:       req.ID,
		Title:    req.Title,
		Messages: req.Messages,
	})
	if err != nil {
		d.respondWithStoreError(w, r, "create chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat.ForDisplay(created))
}

// handleUpdateChat handles PUT /api/chats/{id}
func (d *Dependencies) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	var req UpdateChatRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Messages == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "messages is required")
		return
	}

	store, err := d.storeFor(r.Context(), mustSession(r))
	if err != nil {
		d.respondWithStoreError(w, r, "update chat", err)
		return
	}

	updated, err := store.Update(r.Context(), r.PathValue("id"), req.Messages)
	if err != nil {
		d.respondWithStoreError(w, r, "update chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat.ForDisplay(updated))
}

// handleDeleteChat handles DELETE /api/chats/{id}
func (d *Dependencies) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	store, err := d.storeFor(r.Context(), mustSession(r))
	if err != nil {
		d.respondWithStoreError(w, r, "delete chat", err)
		return
	}

	if err := store.Delete(r.Context(), r.PathValue("id")); err != nil {
		d.respondWithStoreError(w, r, "delete chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func firstUserPrompt(messages models.Messages) string {
	for _, m := range messages {
		if m.Role == models.RoleUser {
			return m.Content
		}
	}
	return ""
}
