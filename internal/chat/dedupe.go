package chat

import "cyris/internal/models"

// Deduplicate drops every message that repeats the role and content of the
// message retained right before it. The model id is not compared. The input
// is never modified.
func Deduplicate(messages []models.Message) models.Messages {
	out := make(models.Messages, 0, len(messages))
	for _, msg := range messages {
		if n := len(out); n > 0 && out[n-1].Role == msg.Role && out[n-1].Content == msg.Content {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// ForDisplay returns a copy of chat with its messages deduplicated
func ForDisplay(chat *models.Chat) *models.Chat {
	if chat == nil {
		return nil
	}
	out := chat.Clone()
	out.Messages = Deduplicate(chat.Messages)
	return out
}

// ForDisplayAll applies ForDisplay to every chat
func ForDisplayAll(chats []*models.Chat) []*models.Chat {
	out := make([]*models.Chat, len(chats))
	for i, c := range chats {
		out[i] = ForDisplay(c)
	}
	return out
}
