// Package chat defines the conversation and message types shared by the
// store, the chat-list index and the service layer. Types here carry no
// behavior beyond status transition rules; ownership of live message
// state belongs to the store.
package chat

import "time"

// Kind distinguishes direct (2-party) from group (N-party) conversations.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// Message is a single chat message. All fields except Status are fixed
// at creation; the store returns copies, so mutating a returned Message
// has no effect on canonical state.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string // attribution for group chats, empty otherwise
	Text           string
	Status         Status
	CreatedAt      time.Time
}

// Conversation is the metadata record owned by the directory.
// A direct conversation has exactly 2 members; a group has at least 2.
type Conversation struct {
	ID          string
	Kind        Kind
	DisplayName string
	MemberIDs   []string
	CreatedAt   time.Time
}

// LastMessage is the preview snapshot of a conversation's most recent message.
type LastMessage struct {
	Text         string
	CreatedAt    time.Time
	IsOwnMessage bool
	Status       Status
}

// Preview is the derived chat-list entry for one conversation.
type Preview struct {
	ConversationID string
	DisplayName    string
	Kind           Kind
	LastMessage    *LastMessage // nil when the conversation has no messages
	UnreadCount    int
	Online         bool // peer presence, direct chats only
	CreatedAt      time.Time
}
