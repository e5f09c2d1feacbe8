package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "bad request",
			code:    http.StatusBadRequest,
			message: "Invalid input",
		},
		{
			name:    "unauthorized",
			code:    http.StatusUnauthorized,
			message: "Authentication required",
		},
		{
			name:    "not found",
			code:    http.StatusNotFound,
			message: "Resource not found",
		},
		{
			name:    "internal server error",
			code:    http.StatusInternalServerError,
			message: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create a response recorder
			w := httptest.NewRecorder()

			// Call the function
			RespondWithError(w, tt.code, tt.message)

			// Check status code
			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			// Check content type
			contentType := w.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", contentType)
			}

			// Parse response body
			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			// Check error message
			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("chat payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := struct {
			ID       string   `json:"id"`
			Title    string   `json:"title"`
			Messages []string `json:"messages"`
		}{
			ID:       "1718000000000-3f2a9c1b",
			Title:    "Hello <there>",
			Messages: []string{"hi", "hello"},
		}

		require.NoError(t, RespondWithJSON(w, http.StatusOK, payload))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var got map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, "Hello <there>", got["title"])
		assert.Len(t, got["messages"], 2)
	})

	t.Run("empty list stays a list", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, RespondWithJSON(w, http.StatusOK, []string{}))
		assert.Equal(t, "[]\n", w.Body.String())
	})

	t.Run("unencodable payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		assert.Error(t, RespondWithJSON(w, http.StatusOK, map[string]any{"bad": make(chan int)}))
	})
}

func TestDecodeJSONBody(t *testing.T) {
	type body struct {
		ChatID         string `json:"chatId"`
		MessageContent string `json:"messageContent"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"chatId":"1","messageContent":"Hello"}`))
		w := httptest.NewRecorder()

		var got body
		require.NoError(t, DecodeJSONBody(w, r, &got))
		assert.Equal(t, "Hello", got.MessageContent)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		w := httptest.NewRecorder()

		var got body
		assert.NoError(t, DecodeJSONBody(w, r, &got))
		assert.Empty(t, got.ChatID)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"chatId":`))
		w := httptest.NewRecorder()

		var got body
		err := DecodeJSONBody(w, r, &got)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON body")
	})

	t.Run("oversized body", func(t *testing.T) {
		payload := `{"messageContent":"` + strings.Repeat("a", MaxJSONBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		w := httptest.NewRecorder()

		var got body
		err := DecodeJSONBody(w, r, &got)
		require.Error(t, err)
		assert.Equal(t, "request body too large", err.Error())
	})
}
