package model

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage represents one entry in the coach transcript.
// Messages are created once and never mutated afterwards.
type ChatMessage struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// NewChatMessage stamps a message with the current time.
func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
