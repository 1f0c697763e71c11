package entity

import (
	"strings"
	"time"
)

// Role xabar muallifi
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

const (
	// DefaultStorageKey history saqlanadigan kalit
	DefaultStorageKey = "nova_chat_history"

	GreetingText      = "Hello! I'm NeethOs AI. How can I help you today?"
	FailureText       = "Error: Failed to get response"
	EmptyResponseText = "Sorry, I couldn't generate a response."
)

// ParseRole parses a stored role; "ai" is the React front-end's name for the bot.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return RoleUser, true
	case "bot", "ai", "model", "assistant":
		return RoleBot, true
	}
	return "", false
}

// Message domain entity
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsUser reports whether the message was typed by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// Conversation ordered view over one conversation's history
type Conversation struct {
	ID       string
	Messages []Message
}

// Exchange one user turn and the bot reply it produced
type Exchange struct {
	User Message `json:"user"`
	Bot  Message `json:"bot"`
	// Failed is set when Bot carries the fallback text instead of a model reply.
	Failed bool `json:"failed"`
}
