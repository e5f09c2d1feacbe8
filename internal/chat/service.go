package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"cyris/internal/metrics"
	"cyris/internal/models"
	"cyris/internal/routing"
	"cyris/internal/storage"
	"cyris/internal/utils"
)

const (
	saveMessageErrorText  = "Error saving message."
	saveResponseErrorText = "Error saving response."

	recordTimeout = time.Second
)

// Resolver makes the forward-or-fallback decision for a prompt
type Resolver interface {
	Validate(selection string) error
	Resolve(ctx context.Context, req routing.ResolveRequest) routing.Outcome
}

// UsageRecorder receives one audit record per round trip
type UsageRecorder interface {
	Enqueue(ctx context.Context, record models.RoundTripRecord) error
}

// Owner identifies who a round trip runs for
type Owner struct {
	Kind string
	ID   string
}

// ServiceConfig wires the collaborators of a Service
type ServiceConfig struct {
	Resolver Resolver
	Recorder UsageRecorder
	Metrics  metrics.Metrics
	Now      func() time.Time
}

// Service runs the send-message round trip
type Service struct {
	resolver Resolver
	recorder UsageRecorder
	metrics  metrics.Metrics
	now      func() time.Time
	logger   *utils.Logger
}

// NewService creates a round-trip service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		resolver: cfg.Resolver,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   utils.NewLogger("chat-service"),
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoopMetrics()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// SendRequest is one user turn
type SendRequest struct {
	// ChatID is empty to start a new chat
	ChatID      string
	Prompt      string
	Model       string
	ImageAPIKey string
	Owner       Owner
	RequestID   string
	Progress    routing.ProgressFunc
}

// SendResult is the chat after the round trip
type SendResult struct {
	Chat      *models.Chat
	Outcome   routing.Outcome
	Created   bool
	Persisted bool

	// Err is the storage failure behind an unsaved round trip
	Err error
}

// Check rejects a request that Send would refuse without storing anything:
// an empty prompt, an unknown model or a chat the store does not hold.
// Other storage failures are left for Send to report in-band.
func (s *Service) Check(ctx context.Context, store Store, req SendRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if err := s.resolver.Validate(req.Model); err != nil {
		return err
	}
	if req.ChatID == "" {
		return nil
	}
	if _, err := store.Get(ctx, req.ChatID); errors.Is(err, storage.ErrChatNotFound) {
		return err
	}
	return nil
}

// Send appends the user turn, obtains the assistant turn and persists both.
// It returns an error only for requests rejected before anything is stored:
// ErrEmptyPrompt, routing.ErrUnknownModel and storage.ErrChatNotFound. Every
// later failure ends the chat with a visible assistant error message.
func (s *Service) Send(ctx context.Context, store Store, req SendRequest) (*SendResult, error) {
	start := time.Now()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if err := s.resolver.Validate(req.Model); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	logger := s.logger.With("request_id", req.RequestID, "owner_kind", req.Owner.Kind)
	result := &SendResult{Created: req.ChatID == ""}

	chat, err := s.saveUserTurn(ctx, store, req)
	if errors.Is(err, storage.ErrChatNotFound) {
		return nil, err
	}
	if err != nil {
		logger.Error("Failed to save user message", "chat_id", chat.ID, "error", err)
		chat.Messages = append(chat.Messages, models.AssistantMessage(saveMessageErrorText, ""))
		result.Chat = ForDisplay(chat)
		result.Err = err
		result.Outcome = routing.Outcome{Fallback: models.FallbackError, Err: err}
		routing.NewTracker(req.Progress).Answered(true)
		s.finish(ctx, req, result, time.Since(start))
		return result, nil
	}

	outcome := s.resolver.Resolve(ctx, routing.ResolveRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		ImageAPIKey: req.ImageAPIKey,
		Tracker:     routing.NewTracker(req.Progress),
	})
	result.Outcome = outcome

	messages := append(chat.Messages.Clone(), outcome.Message)
	updated, err := store.Update(ctx, chat.ID, messages)
	if err != nil {
		logger.Error("Failed to save assistant message", "chat_id", chat.ID, "error", err)
		chat.Messages = append(chat.Messages.Clone(), models.AssistantMessage(saveResponseErrorText, ""))
		result.Chat = ForDisplay(chat)
		result.Err = err
		s.finish(ctx, req, result, time.Since(start))
		return result, nil
	}

	result.Chat = ForDisplay(updated)
	result.Persisted = true
	s.finish(ctx, req, result, time.Since(start))
	return result, nil
}

// saveUserTurn stores the user message and returns the chat holding it. On
// a transient failure the returned chat still carries the unsaved turn.
func (s *Service) saveUserTurn(ctx context.Context, store Store, req SendRequest) (*models.Chat, error) {
	user := models.UserMessage(req.Prompt)

	if req.ChatID == "" {
		draft := &models.Chat{
			ID:       NewChatID(s.now()),
			Title:    TitleFromPrompt(req.Prompt),
			Messages: models.Messages{user},
		}
		created, err := store.Create(ctx, draft)
		if err != nil {
			return draft, err
		}
		return created, nil
	}

	existing, err := store.Get(ctx, req.ChatID)
	if errors.Is(err, storage.ErrChatNotFound) {
		return nil, err
	}
	if err != nil {
		return &models.Chat{ID: req.ChatID, Messages: models.Messages{user}}, err
	}

	messages := append(existing.Messages.Clone(), user)
	updated, err := store.Update(ctx, req.ChatID, messages)
	if errors.Is(err, storage.ErrChatNotFound) {
		return nil, err
	}
	if err != nil {
		existing.Messages = messages
		return existing, err
	}
	return updated, nil
}

// finish records metrics and enqueues the audit record. Neither may fail the
// round trip.
func (s *Service) finish(ctx context.Context, req SendRequest, result *SendResult, elapsed time.Duration) {
	outcome := result.Outcome
	fallback := outcome.Fallback
	if fallback == "" {
		fallback = models.FallbackNone
	}

	s.metrics.RecordRoundTrip(fallback, result.Persisted, elapsed)
	if outcome.Failed() && outcome.FailedStage != "" {
		s.metrics.RecordUpstreamFailure(outcome.FailedStage)
	}

	if s.recorder == nil {
		return
	}

	record := models.RoundTripRecord{
		ID:            uuid.New(),
		RequestID:     req.RequestID,
		OwnerKind:     req.Owner.Kind,
		OwnerID:       req.Owner.ID,
		SelectedModel: selection(req.Model),
		ResolvedModel: outcome.ResolvedModel,
		Routed:        outcome.Routed,
		Fallback:      fallback,
		Persisted:     result.Persisted,
		LatencyMS:     int(elapsed.Milliseconds()),
		CreatedAt:     s.now(),
	}
	if result.Chat != nil {
		record.ChatID = result.Chat.ID
	}
	if result.Err != nil {
		record.ErrorMessage = result.Err.Error()
	} else if outcome.Err != nil {
		record.ErrorMessage = outcome.Err.Error()
	}

	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.Enqueue(enqueueCtx, record); err != nil {
		s.logger.Warn("Failed to enqueue round trip record", "request_id", req.RequestID, "error", err)
	}
}

func selection(model string) string {
	if routing.IsAutopick(model) {
		return routing.Autopick
	}
	return model
}
