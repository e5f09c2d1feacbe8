package models

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingChatID is returned for chats without an id
	ErrMissingChatID = errors.New("chat id is required")

	// ErrMissingTitle is returned for chats without a title
	ErrMissingTitle = errors.New("chat title is required")
)

// Chat is a named, ordered conversation owned by one user or guest session.
type Chat struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"-"`
	Title     string     `db:"title" json:"title"`
	Messages  Messages   `db:"messages" json:"messages"`
	IsShared  bool       `db:"is_shared" json:"isShared"`
	ShareID   *string    `db:"share_id" json:"shareId,omitempty"`
	SharedAt  *time.Time `db:"shared_at" json:"sharedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Validate checks the fields required before a chat is stored.
func (c *Chat) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrMissingChatID
	}
	if strings.TrimSpace(c.Title) == "" {
		return ErrMissingTitle
	}
	return c.Messages.Validate()
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Messages = c.Messages.Clone()
	if c.ShareID != nil {
		id := *c.ShareID
		out.ShareID = &id
	}
	if c.SharedAt != nil {
		at := *c.SharedAt
		out.SharedAt = &at
	}
	return &out
}

// SharedChat is the public read-only view of a shared chat. It never exposes the owner.
type SharedChat struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  Messages   `json:"messages"`
	SharedAt  *time.Time `json:"sharedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Shared projects the chat onto its public view.
func (c *Chat) Shared() *SharedChat {
	return &SharedChat{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  c.Messages.Clone(),
		SharedAt:  c.SharedAt,
		CreatedAt: c.CreatedAt,
	}
}
