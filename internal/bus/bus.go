package bus

import (
	"strings"
	"sync"
)

// Bus is the in-process event bus connecting the store, the status
// machine and any front end watching a session. Subscribers pick a kind
// namespace ("message.", "chat.", "session.") and may additionally pin
// a single conversation. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextToken   int
}

type subscriber struct {
	kindPrefix   string
	conversation string // empty matches every conversation
	ch           chan Event
}

func (s *subscriber) matches(evt Event) bool {
	if !strings.HasPrefix(evt.Kind, s.kindPrefix) {
		return false
	}
	return s.conversation == "" || s.conversation == evt.Conversation
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[int]*subscriber),
	}
}

// Publish delivers an event to every subscriber it matches, dropping it
// for subscribers whose buffer is full.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subscribers {
		if !s.matches(evt) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with
// kindPrefix, and an unsubscribe function.
func (b *Bus) Subscribe(kindPrefix string, bufSize int) (<-chan Event, func()) {
	return b.add(&subscriber{kindPrefix: kindPrefix, ch: make(chan Event, bufSize)})
}

// SubscribeConversation narrows a kind-prefix subscription to events of
// one conversation, so an open chat view is not woken by activity in
// every other chat.
func (b *Bus) SubscribeConversation(kindPrefix, conversationID string, bufSize int) (<-chan Event, func()) {
	return b.add(&subscriber{
		kindPrefix:   kindPrefix,
		conversation: conversationID,
		ch:           make(chan Event, bufSize),
	})
}

func (b *Bus) add(s *subscriber) (<-chan Event, func()) {
	b.mu.Lock()
	token := b.nextToken
	b.nextToken++
	b.subscribers[token] = s
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		delete(b.subscribers, token)
		b.mu.Unlock()
	}
}
