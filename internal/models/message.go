package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// MessageMetadata carries optional annotations attached when a message is recorded.
type MessageMetadata struct {
	HealthContext bool      `json:"healthContext"`
	Intent        string    `json:"intent,omitempty"`
	Sentiment     Sentiment `json:"sentiment,omitempty"`
}

// ChatMessage is one turn of a conversation. It is never mutated after creation.
type ChatMessage struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Turn is the role/content pair handed to a model as history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
