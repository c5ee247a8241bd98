package chat

import "slices"

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// validNext defines allowed status transitions. The only reachable
// sequences are prefixes of sending→sent→delivered→read and
// sending→failed; read and failed are terminal. A failed message is
// never retried in place: a retry is a fresh sending message.
var validNext = map[Status][]Status{
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
	StatusRead:      {},
	StatusFailed:    {},
}

// CanAdvance reports whether a message may move from one status to another.
func CanAdvance(from, to Status) bool {
	return slices.Contains(validNext[from], to)
}

// Terminal reports whether no further transition is possible.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}

// Pending reports whether a message counts toward the recipient's
// unread tally: it has reached the other side (or their server) but has
// not been read yet.
func Pending(s Status) bool {
	return s == StatusSent || s == StatusDelivered
}
