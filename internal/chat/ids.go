package chat

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	titleMaxRunes = 30
	defaultTitle  = "New Chat"
)

// TitleFromPrompt derives a chat title from its first prompt
func TitleFromPrompt(prompt string) string {
	collapsed := strings.Join(strings.Fields(prompt), " ")
	if collapsed == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(collapsed) <= titleMaxRunes {
		return collapsed
	}
	runes := []rune(collapsed)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}

// NewChatID returns a timestamp-prefixed chat id such as 1718000000000-3f2a9c1b
func NewChatID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// NewShareID returns a 12 character URL-safe token for a public share link
func NewShareID() string {
	id := uuid.New()
	// bytes 6 and 8 carry the version and variant bits
	b := make([]byte, 0, 9)
	b = append(b, id[:6]...)
	b = append(b, id[9:12]...)
	return base64.RawURLEncoding.EncodeToString(b)
}
