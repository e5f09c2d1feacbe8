package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cyris/internal/chat"
	"cyris/internal/middleware"
	"cyris/internal/routing"
	"cyris/internal/utils"
)

// ImageKeyHeader carries the caller's own OpenAI key for image models
const ImageKeyHeader = "X-OpenAI-Key"

const defaultRoundTripTimeout = 2 * time.Minute

// SendMessageRequest is the body of POST /api/chat/message. An empty chatId
// starts a new chat; an empty model means autopick.
type SendMessageRequest struct {
	ChatID         string `json:"chatId"`
	MessageContent string `json:"messageContent"`
	Model          string `json:"model"`
}

// handleSendMessage handles POST /api/chat/message.
//
// The round trip outlives the client: once accepted it runs to completion
// and persists its result even if the caller disconnects. With
// "Accept: text/event-stream" progress phases are streamed as they happen.
func (d *Dependencies) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.MessageContent) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Message content is required")
		return
	}

	session := mustSession(r)
	who := owner(session)

	store, err := d.storeFor(r.Context(), session)
	if err != nil {
		d.respondWithStoreError(w, r, "send message", err)
		return
	}

	send := chat.SendRequest{
		ChatID:      req.ChatID,
		Prompt:      req.MessageContent,
		Model:       req.Model,
		ImageAPIKey: r.Header.Get(ImageKeyHeader),
		Owner:       who,
		RequestID:   middleware.GetRequestID(r),
	}

	// rejected requests do not use up the budget
	if err := d.Service.Check(r.Context(), store, send); err != nil {
		d.respondWithStoreError(w, r, "send message", err)
		return
	}
	if !d.allowSend(w, r, who) {
		return
	}

	timeout := d.RoundTripTimeout
	if timeout <= 0 {
		timeout = defaultRoundTripTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	var stream *eventStream
	if wantsEventStream(r) {
		stream = newEventStream(w)
		send.Progress = func(p routing.Progress) {
			stream.send("progress", p)
		}
	}

	result, err := d.Service.Send(ctx, store, send)
	if err != nil {
		if stream != nil && stream.started {
			stream.send("error", utils.ErrorResponse{Error: err.Error()})
			return
		}
		d.respondWithStoreError(w, r, "send message", err)
		return
	}

	if stream != nil {
		stream.send("chat", result.Chat)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result.Chat)
}

// allowSend applies the per-owner message budget. A limiter failure lets
// the request through.
func (d *Dependencies) allowSend(w http.ResponseWriter, r *http.Request, who chat.Owner) bool {
	if d.MessagesPerMinute <= 0 {
		return true
	}

	key := "send:" + who.Kind + ":" + who.ID
	allowed, remaining, resetAt, err := d.RateLimit.AllowWithDetails(r.Context(), key, d.MessagesPerMinute)
	if err != nil {
		d.log().Warn("Rate limit check failed", "error", err)
		return true
	}

	if remaining >= 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.MessagesPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if !allowed {
		if !resetAt.IsZero() {
			retry := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
		utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// eventStream writes server-sent events. Headers are sent with the first
// event so that early failures can still be answered with a plain status.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	broken  bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	flusher, _ := w.(http.Flusher)
	return &eventStream{w: w, flusher: flusher}
}

func (s *eventStream) send(event string, payload any) {
	if s.broken {
		return
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	// writes fail once the client is gone; the round trip carries on regardless
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.broken = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
