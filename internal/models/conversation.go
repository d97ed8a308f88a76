package models

import "time"

// Conversation groups the bounded sequence of messages of one session.
type Conversation struct {
	ID            string        `json:"id"`
	Messages      []ChatMessage `json:"messages"`
	StartedAt     time.Time     `json:"startedAt"`
	LastMessageAt time.Time     `json:"lastMessageAt"`
	Topics        []string      `json:"topics"`
	Summary       string        `json:"summary,omitempty"`
}

// Clone returns a deep copy safe to hand outside the owning store.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]ChatMessage(nil), c.Messages...)
	out.Topics = append([]string(nil), c.Topics...)
	return &out
}
