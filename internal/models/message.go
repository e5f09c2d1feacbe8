package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	// ErrUnknownRole is returned when a role string is not one of the known roles
	ErrUnknownRole = errors.New("unknown message role")

	// ErrEmptyContent is returned for messages without content
	ErrEmptyContent = errors.New("message content is empty")

	// ErrUserModelID is returned when a user message carries a model id
	ErrUserModelID = errors.New("user messages cannot carry a model id")
)

// ParseRole converts a raw role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	return string(r)
}

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message is one turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	ModelID string `json:"modelId,omitempty"`
}

// Validate checks the message invariants.
func (m Message) Validate() error {
	if _, err := ParseRole(string(m.Role)); err != nil {
		return err
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if m.Role == RoleUser && m.ModelID != "" {
		return ErrUserModelID
	}
	return nil
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn, optionally tagged with the model that produced it.
func AssistantMessage(content, modelID string) Message {
	return Message{Role: RoleAssistant, Content: content, ModelID: modelID}
}
