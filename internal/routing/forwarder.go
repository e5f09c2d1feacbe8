package routing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cyris/internal/models"
	"cyris/internal/utils"
)

// Autopick is the selection that lets the router model choose the target.
const Autopick = "autopick"

const (
	routerErrorText = "Error getting response from router model."
	imageMarkdown   = "![Generated Image](%s)"
)

// plausibleModelID accepts vendor/model[:tag] style identifiers.
var plausibleModelID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]*(/[A-Za-z0-9._:\-]+)*$`)

// Completer invokes a chat model and returns its reply text.
type Completer interface {
	Complete(ctx context.Context, modelID string, messages []models.Message) (string, error)
}

// ImageGenerator produces an image for a prompt using the caller's own key and
// returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// Catalog is the read side of the model registry.
type Catalog interface {
	Lookup(id string) (models.AIModel, bool)
	AutopickEligible() []models.AIModel
}

// ForwarderConfig wires the collaborators of a Forwarder
type ForwarderConfig struct {
	Completer   Completer
	Images      ImageGenerator
	Catalog     Catalog
	RouterModel string
}

// Forwarder makes the forward-or-fallback decision for one prompt.
type Forwarder struct {
	completer   Completer
	images      ImageGenerator
	catalog     Catalog
	routerModel string
	logger      *utils.Logger
}

// NewForwarder creates a forwarder
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	return &Forwarder{
		completer:   cfg.Completer,
		images:      cfg.Images,
		catalog:     cfg.Catalog,
		routerModel: cfg.RouterModel,
		logger:      utils.NewLogger("forwarder"),
	}
}

// ResolveRequest is the input of a single forwarding decision.
type ResolveRequest struct {
	Prompt      string
	Model       string
	ImageAPIKey string
	Tracker     *Tracker
}

// Stages where a round trip can fail
const (
	StageRouter = "router"
	StageTarget = "target"
	StageImage  = "image"
)

// Outcome is the assistant turn produced by Resolve plus what happened on the way.
type Outcome struct {
	Message       models.Message
	Routed        bool
	Forwarded     bool
	ResolvedModel string
	Fallback      string
	Err           error
	Latency       time.Duration

	// FailedStage names the call that failed when Failed is true
	FailedStage string
}

// Failed reports whether the assistant message is an in-band error.
func (o Outcome) Failed() bool {
	return o.Fallback == models.FallbackError
}

// IsAutopick reports whether selection delegates the choice to the router.
func IsAutopick(selection string) bool {
	return selection == "" || selection == Autopick
}

// Validate checks an explicit selection against the registry.
func (f *Forwarder) Validate(selection string) error {
	if IsAutopick(selection) {
		return nil
	}
	if _, ok := f.catalog.Lookup(selection); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, selection)
	}
	return nil
}

// Resolve produces the assistant message for a prompt. Failures are turned
// into in-band error messages and never returned.
func (f *Forwarder) Resolve(ctx context.Context, req ResolveRequest) Outcome {
	start := time.Now()
	tracker := req.Tracker
	if tracker == nil {
		tracker = NewTracker(nil)
	}

	var out Outcome
	if IsAutopick(req.Model) {
		out = f.autopick(ctx, req.Prompt, tracker)
	} else {
		out = f.explicit(ctx, req)
	}

	tracker.Answered(out.Failed())
	out.Latency = time.Since(start)
	return out
}

func (f *Forwarder) explicit(ctx context.Context, req ResolveRequest) Outcome {
	model, ok := f.catalog.Lookup(req.Model)
	if !ok {
		return failure(StageTarget, fmt.Sprintf("Error getting response from model %s.", req.Model),
			fmt.Errorf("%w: %s", ErrUnknownModel, req.Model))
	}

	if model.ImageOnly {
		return f.generateImage(ctx, model, req)
	}

	return f.forward(ctx, model.ID, req.Prompt, false)
}

func (f *Forwarder) generateImage(ctx context.Context, model models.AIModel, req ResolveRequest) Outcome {
	if strings.TrimSpace(req.ImageAPIKey) == "" || f.images == nil {
		return failure(StageImage, fmt.Sprintf("Error generating image with %s: %s.", model.Name, ErrMissingImageKey),
			ErrMissingImageKey)
	}

	url, err := f.images.Generate(ctx, req.ImageAPIKey, req.Prompt)
	if err == nil && url == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		f.logger.Warn("Image generation failed", "model", model.ID, "error", err)
		return failure(StageImage, fmt.Sprintf("Error generating image with %s.", model.Name), err)
	}

	return Outcome{
		Message:       models.AssistantMessage(fmt.Sprintf(imageMarkdown, url), model.ID),
		Forwarded:     true,
		ResolvedModel: model.ID,
		Fallback:      models.FallbackNone,
	}
}

func (f *Forwarder) autopick(ctx context.Context, prompt string, tracker *Tracker) Outcome {
	tracker.Pending()

	reply, err := f.completer.Complete(ctx, f.routerModel, []models.Message{
		{Role: models.RoleSystem, Content: RouterSystemPrompt(f.catalog.AutopickEligible())},
		models.UserMessage(prompt),
	})
	if err != nil {
		f.logger.Warn("Router call failed", "model", f.routerModel, "error", err)
		out := failure(StageRouter, routerErrorText, err)
		out.Routed = true
		return out
	}

	directive := Decode(reply)
	target, reason := f.forwardable(directive)
	if reason != nil {
		f.logger.Debug("Using router reply directly", "reason", reason.Error(), "target", directive.TargetModel)
		if strings.TrimSpace(reply) == "" {
			out := failure(StageRouter, routerErrorText, ErrEmptyReply)
			out.Routed = true
			return out
		}
		fallback := models.FallbackRouterText
		var cause error
		if directive.IsRouting {
			fallback = models.FallbackUnknownTarget
			cause = reason
		}
		return Outcome{
			Message:       models.AssistantMessage(reply, ""),
			Routed:        true,
			ResolvedModel: f.routerModel,
			Fallback:      fallback,
			Err:           cause,
		}
	}

	tracker.Resolved(target.ID)
	return f.forward(ctx, target.ID, directive.ForwardedPrompt, true)
}

// forwardable returns the registry entry a directive may be forwarded to, or
// the reason it may not.
func (f *Forwarder) forwardable(d Directive) (models.AIModel, error) {
	if !d.IsRouting {
		return models.AIModel{}, errors.New("no directive")
	}
	if d.TargetModel == "" || !plausibleModelID.MatchString(d.TargetModel) {
		return models.AIModel{}, fmt.Errorf("%w: malformed id %q", ErrInvalidTarget, d.TargetModel)
	}
	model, ok := f.catalog.Lookup(d.TargetModel)
	if !ok {
		return models.AIModel{}, fmt.Errorf("%w: %s is not registered", ErrInvalidTarget, d.TargetModel)
	}
	if model.ImageOnly {
		return models.AIModel{}, fmt.Errorf("%w: %s is image-only", ErrInvalidTarget, d.TargetModel)
	}
	return model, nil
}

func (f *Forwarder) forward(ctx context.Context, modelID, prompt string, routed bool) Outcome {
	reply, err := f.completer.Complete(ctx, modelID, []models.Message{
		{Role: models.RoleSystem, Content: ForwardedResponseSystemPrompt},
		models.UserMessage(prompt),
	})
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		f.logger.Warn("Target model call failed", "model", modelID, "error", err)
		out := failure(StageTarget, fmt.Sprintf("Error getting response from model %s.", modelID), err)
		out.Routed = routed
		return out
	}

	return Outcome{
		Message:       models.AssistantMessage(reply, modelID),
		Routed:        routed,
		Forwarded:     true,
		ResolvedModel: modelID,
		Fallback:      models.FallbackNone,
	}
}

func failure(stage, text string, err error) Outcome {
	return Outcome{
		Message:     models.AssistantMessage(text, ""),
		Fallback:    models.FallbackError,
		Err:         err,
		FailedStage: stage,
	}
}
