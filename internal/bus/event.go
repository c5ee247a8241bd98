package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by namespace
// prefix, e.g. "message." receives every message event.
const (
	KindMessageAppended      = "message.appended"
	KindMessageStatusChanged = "message.status_changed"
	KindChatCreated          = "chat.created"
	KindChatRead             = "chat.read"
	KindChatDeleted          = "chat.deleted"
	KindSessionStateChanged  = "session.state_changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind         string
	Conversation string // owning conversation id, empty for session-level events
	At           time.Time
	Payload      any
}
