package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyris/internal/models"
)

const routerModel = "deepseek/deepseek-chat-v3-0324:free"

type completion struct {
	reply string
	err   error
}

type call struct {
	model    string
	messages []models.Message
}

type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]completion
	calls   []call
}

func newFakeCompleter(replies map[string]completion) *fakeCompleter {
	return &fakeCompleter{replies: replies}
}

func (f *fakeCompleter) Complete(ctx context.Context, modelID string, messages []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{model: modelID, messages: messages})
	c, ok := f.replies[modelID]
	if !ok {
		return "", errors.New("no fake reply for " + modelID)
	}
	return c.reply, c.err
}

func (f *fakeCompleter) calledModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.model)
	}
	return out
}

type fakeImages struct {
	url    string
	err    error
	gotKey string
}

func (f *fakeImages) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	f.gotKey = apiKey
	return f.url, f.err
}

type staticCatalog []models.AIModel

func (c staticCatalog) Lookup(id string) (models.AIModel, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return models.AIModel{}, false
}

func (c staticCatalog) AutopickEligible() []models.AIModel {
	var out []models.AIModel
	for _, m := range c {
		if !m.ImageOnly {
			out = append(out, m)
		}
	}
	return out
}

func newTestForwarder(c Completer, images ImageGenerator) *Forwarder {
	return NewForwarder(ForwarderConfig{
		Completer:   c,
		Images:      images,
		Catalog:     staticCatalog(models.DefaultAIModels()),
		RouterModel: routerModel,
	})
}

func TestForwarder_Validate(t *testing.T) {
	f := newTestForwarder(newFakeCompleter(nil), nil)

	assert.NoError(t, f.Validate(""))
	assert.NoError(t, f.Validate(Autopick))
	assert.NoError(t, f.Validate("openai/gpt-4o-mini"))
	assert.ErrorIs(t, f.Validate("acme/unknown"), ErrUnknownModel)
}

func TestForwarder_AutopickForwardsToTarget(t *testing.T) {
	c := newFakeCompleter(map[string]completion{
		routerModel:          {reply: `<routePrompt prompt="Hello" model="openai/gpt-4o-mini"/>`},
		"openai/gpt-4o-mini": {reply: "Hi! How can I help?"},
	})
	var phases []Phase
	tracker := NewTracker(func(p Progress) { phases = append(phases, p.Phase) })

	out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{
		Prompt:  "Hello",
		Model:   Autopick,
		Tracker: tracker,
	})

	assert.Equal(t, []string{routerModel, "openai/gpt-4o-mini"}, c.calledModels())
	assert.Equal(t, models.AssistantMessage("Hi! How can I help?", "openai/gpt-4o-mini"), out.Message)
	assert.True(t, out.Routed)
	assert.True(t, out.Forwarded)
	assert.Equal(t, models.FallbackNone, out.Fallback)
	assert.NoError(t, out.Err)

	// target receives the forwarded prompt after the formatting instruction
	target := c.calls[1]
	require.Len(t, target.messages, 2)
	assert.Equal(t, models.RoleSystem, target.messages[0].Role)
	assert.Equal(t, ForwardedResponseSystemPrompt, target.messages[0].Content)
	assert.Equal(t, models.UserMessage("Hello"), target.messages[1])

	assert.Equal(t, []Phase{PhaseRoutingPending, PhaseRoutingResolved, PhaseAnswered}, phases)
}

func TestForwarder_RouterPlainTextIsTheAnswer(t *testing.T) {
	c := newFakeCompleter(map[string]completion{
		routerModel: {reply: "I am a router, how can I help?"},
	})

	out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{Prompt: "what are you?"})

	assert.Equal(t, []string{routerModel}, c.calledModels())
	assert.Equal(t, "I am a router, how can I help?", out.Message.Content)
	assert.Empty(t, out.Message.ModelID)
	assert.Equal(t, models.FallbackRouterText, out.Fallback)
	assert.False(t, out.Failed())
}

func TestForwarder_RouterPromptListsOnlyEligibleModels(t *testing.T) {
	c := newFakeCompleter(map[string]completion{routerModel: {reply: "hi"}})

	newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{Prompt: "hi"})

	system := c.calls[0].messages[0]
	assert.Equal(t, models.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "  • meta-llama/llama-4-scout \n    – Llama 4 Scout")
	assert.NotContains(t, system.Content, "  • openai/gpt-image-1")
}

func TestForwarder_RouterTargetNotForwardable(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"unregistered", `<routePrompt prompt="Hi" model="acme/secret-model"/>`},
		{"image only", `<routePrompt prompt="Draw a cat" model="openai/gpt-image-1"/>`},
		{"empty model", `<routePrompt prompt="Hi" model=""/>`},
		{"implausible id", `<routePrompt prompt="Hi" model="not a model id"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCompleter(map[string]completion{routerModel: {reply: tt.reply}})

			out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hi"})

			assert.Equal(t, []string{routerModel}, c.calledModels())
			assert.Equal(t, tt.reply, out.Message.Content)
			assert.Empty(t, out.Message.ModelID)
			assert.Equal(t, models.FallbackUnknownTarget, out.Fallback)
			assert.ErrorIs(t, out.Err, ErrInvalidTarget)
		})
	}
}

func TestForwarder_RouterFailure(t *testing.T) {
	tests := []struct {
		name string
		c    completion
	}{
		{"network error", completion{err: errors.New("connection reset")}},
		{"empty reply", completion{reply: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCompleter(map[string]completion{routerModel: tt.c})
			tracker := NewTracker(nil)

			out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hi", Tracker: tracker})

			assert.Equal(t, "Error getting response from router model.", out.Message.Content)
			assert.Empty(t, out.Message.ModelID)
			assert.True(t, out.Failed())
			assert.Error(t, out.Err)
			assert.Equal(t, PhaseAnswered, tracker.Phase())
		})
	}
}

func TestForwarder_TargetFailureIsInBand(t *testing.T) {
	c := newFakeCompleter(map[string]completion{
		routerModel:          {reply: `<routePrompt prompt="Hello" model="openai/gpt-4o-mini"/>`},
		"openai/gpt-4o-mini": {err: errors.New("dial tcp: i/o timeout")},
	})

	out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hello"})

	assert.Equal(t, models.RoleAssistant, out.Message.Role)
	assert.True(t, strings.HasPrefix(out.Message.Content, "Error"))
	assert.Contains(t, out.Message.Content, "openai/gpt-4o-mini")
	assert.Empty(t, out.Message.ModelID)
	assert.True(t, out.Failed())
	assert.True(t, out.Routed)
}

func TestForwarder_ExplicitModelBypassesRouter(t *testing.T) {
	c := newFakeCompleter(map[string]completion{
		"google/gemini-2.5-flash-preview-05-20": {reply: "## Answer"},
	})
	var phases []Phase
	tracker := NewTracker(func(p Progress) { phases = append(phases, p.Phase) })

	out := newTestForwarder(c, nil).Resolve(context.Background(), ResolveRequest{
		Prompt:  "Prove it",
		Model:   "google/gemini-2.5-flash-preview-05-20",
		Tracker: tracker,
	})

	assert.Equal(t, []string{"google/gemini-2.5-flash-preview-05-20"}, c.calledModels())
	assert.Equal(t, "google/gemini-2.5-flash-preview-05-20", out.Message.ModelID)
	assert.False(t, out.Routed)
	assert.Equal(t, []Phase{PhaseAnswered}, phases)
}

func TestForwarder_ExplicitImageModel(t *testing.T) {
	t.Run("with key", func(t *testing.T) {
		c := newFakeCompleter(nil)
		images := &fakeImages{url: "https://img.example/cat.png"}

		out := newTestForwarder(c, images).Resolve(context.Background(), ResolveRequest{
			Prompt:      "a cat",
			Model:       "openai/gpt-image-1",
			ImageAPIKey: "sk-user",
		})

		assert.Empty(t, c.calledModels())
		assert.Equal(t, "sk-user", images.gotKey)
		assert.Equal(t, models.AssistantMessage("![Generated Image](https://img.example/cat.png)", "openai/gpt-image-1"), out.Message)
	})

	t.Run("without key", func(t *testing.T) {
		images := &fakeImages{url: "unused"}

		out := newTestForwarder(newFakeCompleter(nil), images).Resolve(context.Background(), ResolveRequest{
			Prompt: "a cat",
			Model:  "openai/gpt-image-1",
		})

		assert.Equal(t, "Error generating image with GPT-Image-1: an OpenAI API key is required.", out.Message.Content)
		assert.Empty(t, images.gotKey)
		assert.ErrorIs(t, out.Err, ErrMissingImageKey)
	})

	t.Run("generator failure", func(t *testing.T) {
		images := &fakeImages{err: errors.New("billing hard limit")}

		out := newTestForwarder(newFakeCompleter(nil), images).Resolve(context.Background(), ResolveRequest{
			Prompt:      "a cat",
			Model:       "openai/gpt-image-1",
			ImageAPIKey: "sk-user",
		})

		assert.True(t, out.Failed())
		assert.Empty(t, out.Message.ModelID)
	})
}

func TestForwarder_FailedStage(t *testing.T) {
	routerDown := newFakeCompleter(map[string]completion{routerModel: {err: errors.New("down")}})
	out := newTestForwarder(routerDown, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hi"})
	assert.Equal(t, StageRouter, out.FailedStage)

	targetDown := newFakeCompleter(map[string]completion{"openai/gpt-4o-mini": {err: errors.New("down")}})
	out = newTestForwarder(targetDown, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hi", Model: "openai/gpt-4o-mini"})
	assert.Equal(t, StageTarget, out.FailedStage)

	out = newTestForwarder(newFakeCompleter(nil), &fakeImages{}).Resolve(context.Background(), ResolveRequest{Prompt: "Hi", Model: "openai/gpt-image-1"})
	assert.Equal(t, StageImage, out.FailedStage)

	ok := newFakeCompleter(map[string]completion{routerModel: {reply: "hello"}})
	out = newTestForwarder(ok, nil).Resolve(context.Background(), ResolveRequest{Prompt: "Hi"})
	assert.Empty(t, out.FailedStage)
}
