package core

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message authored by the human user (or a parent agent
	// relaying on the user's behalf).
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the model, including raw
	// action envelopes before parsing.
	RoleAssistant Role = "assistant"
)

// Kind distinguishes plain text messages from image content references.
type Kind string

const (
	// KindText is the default message kind.
	KindText Kind = "text"
	// KindImage marks a message whose content is an image reference or
	// base64 payload that providers may render differently.
	KindImage Kind = "image"
)

// Message is one entry in a conversation history. Histories are append-only
// during a loop run and owned exclusively by one loop instance per run.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewUserMessage constructs a text message with the user role.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Kind: KindText, Timestamp: time.Now()}
}

// NewAssistantMessage constructs a text message with the assistant role.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Kind: KindText, Timestamp: time.Now()}
}

// CloneHistory returns a shallow copy of a message slice so a nested loop can
// start from a snapshot without sharing backing storage with its parent.
func CloneHistory(history []Message) []Message {
	cp := make([]Message, len(history))
	copy(cp, history)
	return cp
}
