package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cyris/internal/auth"
	"cyris/internal/chat"
	"cyris/internal/middleware"
	"cyris/internal/models"
	"cyris/internal/providers"
	"cyris/internal/routing"
	"cyris/internal/storage"
)

const (
	testRouterModel = "deepseek/deepseek-chat-v3-0324:free"
	testUserID      = "user-1"
	testGuestToken  = "guest-token-0123456789abcdef"
)

var testSecret = []byte("test-session-secret")

// fakeCompleter answers per model id
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, modelID string, messages []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelID)
	if err := f.errs[modelID]; err != nil {
		return "", err
	}
	reply, ok := f.replies[modelID]
	if !ok {
		return "", errors.New("no reply scripted for " + modelID)
	}
	return reply, nil
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

type testAPI struct {
	handler   http.Handler
	deps      *Dependencies
	completer *fakeCompleter
	images    *fakeImages
	guests    *storage.MemoryGuestBackend
}

// newTestAPI wires the router on in-memory stores. opts run before the
// router is built.
func newTestAPI(t *testing.T, opts ...func(*testAPI)) *testAPI {
	t.Helper()

	completer := &fakeCompleter{replies: map[string]string{}, errs: map[string]error{}}
	images := &fakeImages{url: "https://img.example/generated.png"}
	registry := providers.NewModelRegistry(models.DefaultAIModels()...)
	guests := storage.NewMemoryGuestBackend(0)

	forwarder := routing.NewForwarder(routing.ForwarderConfig{
		Completer:   completer,
		Images:      images,
		Catalog:     registry,
		RouterModel: testRouterModel,
	})

	api := &testAPI{
		completer: completer,
		images:    images,
		guests:    guests,
		deps: &Dependencies{
			Chats:            storage.NewMemoryChatRepository(),
			Guests:           storage.NewGuestStore(guests),
			Service:          chat.NewService(chat.ServiceConfig{Resolver: forwarder}),
			Registry:         registry,
			Images:           images,
			SessionSecret:    testSecret,
			RoundTripTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(api)
	}
	api.handler = NewRouter(api.deps)
	return api
}

type credential func(r *http.Request)

func asUser(t *testing.T, userID string) credential {
	t.Helper()
	token, _, err := auth.IssueSessionToken(userID, userID+"@example.com", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func asGuest(token string) credential {
	return func(r *http.Request) {
		r.Header.Set(middleware.GuestSessionHeader, token)
	}
}

func withHeader(key, value string) credential {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, creds ...credential) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range creds {
		c(req)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, want int, message string) {
	t.Helper()
	expectStatus(t, w, want)
	body := decode[map[string]string](t, w)
	if body["error"] != message {
		t.Errorf("Expected error %q, got %q", message, body["error"])
	}
}

func (a *testAPI) createChat(t *testing.T, req CreateChatRequest, creds ...credential) *models.Chat {
	t.Helper()
	w := a.do(t, "POST", "/api/chats", req, creds...)
	expectStatus(t, w, http.StatusOK)
	return decode[*models.Chat](t, w)
}
