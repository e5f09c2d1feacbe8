package httpapi

import (
	"context"
	"errors"
	"net/http"

	"cyris/internal/chat"
	"cyris/internal/middleware"
	"cyris/internal/models"
	"cyris/internal/routing"
	"cyris/internal/storage"
	"cyris/internal/utils"
)

const internalErrorText = "Internal server error"

// storeFor selects the chat store of the caller: the account store for a
// signed-in user, the guest store otherwise.
func (d *Dependencies) storeFor(ctx context.Context, session *middleware.Session) (chat.Store, error) {
	if session.IsUser() {
		return d.Chats.ForUser(session.UserID), nil
	}

	chats, err := d.Guests.Open(ctx, session.GuestToken)
	if errors.Is(err, storage.ErrCorruptGuestData) {
		d.log().Warn("Discarding unreadable guest chats", "error", err)
		if err := d.Guests.Reset(ctx, session.GuestToken); err != nil {
			return nil, err
		}
		chats, err = d.Guests.Open(ctx, session.GuestToken)
	}
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func owner(session *middleware.Session) chat.Owner {
	if session.IsUser() {
		return chat.Owner{Kind: models.OwnerKindUser, ID: session.UserID}
	}
	return chat.Owner{Kind: models.OwnerKindGuest, ID: utils.HashString(session.GuestToken)}
}

// mustSession returns the session placed by the session middleware. Routes
// using it are always wrapped with RequireSession or RequireUser.
func mustSession(r *http.Request) *middleware.Session {
	session, _ := middleware.GetSession(r.Context())
	return session
}

func isValidationError(err error) bool {
	return errors.Is(err, models.ErrMissingChatID) ||
		errors.Is(err, models.ErrMissingTitle) ||
		errors.Is(err, models.ErrUnknownRole) ||
		errors.Is(err, models.ErrEmptyContent) ||
		errors.Is(err, models.ErrUserModelID)
}

// respondWithStoreError maps storage and validation errors onto statuses
func (d *Dependencies) respondWithStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, storage.ErrChatExists):
		utils.RespondWithError(w, http.StatusConflict, "Chat already exists")
	case errors.Is(err, chat.ErrEmptyPrompt):
		utils.RespondWithError(w, http.StatusBadRequest, "Message content is required")
	case errors.Is(err, routing.ErrUnknownModel):
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown model")
	case isValidationError(err):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		d.log().Error("Request failed", "op", op, "request_id", middleware.GetRequestID(r), "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, internalErrorText)
	}
}
