// Package store owns the canonical message state for a session. Every
// mutation is serialized under one mutex and refreshes the chat-list
// index for the affected conversation before the lock is released, so
// no reader ever pairs a message status with a stale unread count.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lfmartins/courier/internal/bus"
	"github.com/lfmartins/courier/internal/chat"
	"go.uber.org/zap"
)

// Persister mirrors mutations to durable storage. All methods are
// invoked inside the store's critical section; implementations must not
// call back into the store.
type Persister interface {
	SaveMessage(m chat.Message) error
	UpdateStatus(messageID string, status chat.Status) error
	DeleteConversation(conversationID string) error
}

// Index is the chat-list view refreshed after every mutation.
type Index interface {
	Refresh(conversationID string, msgs []chat.Message)
	Drop(conversationID string)
}

// Store holds all messages for a session, grouped per conversation in
// creation order.
type Store struct {
	mu     sync.Mutex
	byConv map[string][]*chat.Message
	byID   map[string]*chat.Message
	known  map[string]bool // registered conversation ids

	index   Index     // optional, bound after construction
	persist Persister // optional
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates an empty store. Conversations must be registered via
// AddConversation (or Restore) before messages can be appended to them.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	return &Store{
		byConv: make(map[string][]*chat.Message),
		byID:   make(map[string]*chat.Message),
		known:  make(map[string]bool),
		bus:    b,
		logger: logger,
	}
}

// BindIndex attaches the chat-list index. Done after construction
// because the index reads messages back through the store.
func (s *Store) BindIndex(ix Index) {
	s.mu.Lock()
	s.index = ix
	s.mu.Unlock()
}

// BindPersister attaches the durable mirror.
func (s *Store) BindPersister(p Persister) {
	s.mu.Lock()
	s.persist = p
	s.mu.Unlock()
}

// AddConversation registers a conversation so messages can be appended to it.
func (s *Store) AddConversation(c chat.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[c.ID] {
		return
	}
	s.known[c.ID] = true
	s.refreshLocked(c.ID)
}

// Append creates a message in sending state, inserts it at the tail of
// the conversation and returns it immediately. The caller must not
// block on transport; delivery acknowledgments arrive later through
// ConfirmSent/ConfirmDelivered/MarkFailed.
func (s *Store) Append(conversationID, senderID, senderName, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, &chat.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if senderID == "" {
		return chat.Message{}, &chat.ValidationError{Field: "sender", Reason: "must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[conversationID] {
		return chat.Message{}, &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}

	m := &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           text,
		Status:         chat.StatusSending,
		CreatedAt:      time.Now().UTC(),
	}
	s.byConv[conversationID] = append(s.byConv[conversationID], m)
	s.byID[m.ID] = m

	s.persistMessageLocked(*m)
	s.refreshLocked(conversationID)
	s.publish(bus.KindMessageAppended, conversationID, *m)
	return *m, nil
}

// ConfirmSent records the first-stage transport acknowledgment.
// Calling it on a message not in sending state is a no-op.
func (s *Store) ConfirmSent(messageID string) error {
	return s.advance(messageID, chat.StatusSending, chat.StatusSent)
}

// ConfirmDelivered records the second-stage (recipient) acknowledgment.
// Calling it on a message not in sent state is a no-op.
func (s *Store) ConfirmDelivered(messageID string) error {
	return s.advance(messageID, chat.StatusSent, chat.StatusDelivered)
}

// MarkFailed records a transport error. Only a sending message can
// fail; acknowledgments arriving after failure are absorbed as no-ops.
func (s *Store) MarkFailed(messageID string) error {
	return s.advance(messageID, chat.StatusSending, chat.StatusFailed)
}

// advance applies an idempotent status transition. Duplicate or
// out-of-order acknowledgments find the message in an unexpected state
// and leave it untouched rather than corrupting the sequence.
func (s *Store) advance(messageID string, from, to chat.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return &chat.NotFoundError{Kind: "message", ID: messageID}
	}
	if m.Status != from {
		return nil
	}
	m.Status = to
	s.persistStatusLocked(m.ID, to)
	s.refreshLocked(m.ConversationID)
	s.publish(bus.KindMessageStatusChanged, m.ConversationID, *m)
	return nil
}

// MarkConversationRead transitions every message in the conversation
// authored by someone other than viewerID and currently sent or
// delivered to read. Idempotent: a second call finds nothing to change.
func (s *Store) MarkConversationRead(conversationID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[conversationID] {
		return &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}

	changed := 0
	for _, m := range s.byConv[conversationID] {
		if m.SenderID == viewerID || !chat.Pending(m.Status) {
			continue
		}
		m.Status = chat.StatusRead
		s.persistStatusLocked(m.ID, chat.StatusRead)
		changed++
	}
	if changed > 0 {
		s.refreshLocked(conversationID)
		s.publish(bus.KindChatRead, conversationID, changed)
	}
	return nil
}

// ListMessages returns the conversation's messages in creation order.
// The result is a copy; callers may re-invoke at any time.
func (s *Store) ListMessages(conversationID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[conversationID] {
		return nil, &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	return s.snapshotLocked(conversationID), nil
}

// Message returns a copy of a single message by id.
func (s *Store) Message(messageID string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return chat.Message{}, &chat.NotFoundError{Kind: "message", ID: messageID}
	}
	return *m, nil
}

// DeleteConversation removes a conversation and all its messages.
// Used by the explicit group-delete cascade; direct chats are never
// structurally deleted.
func (s *Store) DeleteConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[conversationID] {
		return &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	for _, m := range s.byConv[conversationID] {
		delete(s.byID, m.ID)
	}
	delete(s.byConv, conversationID)
	delete(s.known, conversationID)

	if s.persist != nil {
		if err := s.persist.DeleteConversation(conversationID); err != nil {
			s.logger.Warn("persist delete failed", zap.Error(err), zap.String("conversation", conversationID))
		}
	}
	if s.index != nil {
		s.index.Drop(conversationID)
	}
	s.publish(bus.KindChatDeleted, conversationID, nil)
	return nil
}

// Restore loads previously persisted state. msgs must already be in
// creation order (the persister's load queries guarantee it). No events
// are published while restoring.
func (s *Store) Restore(conversationIDs []string, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range conversationIDs {
		s.known[id] = true
	}
	for i := range msgs {
		m := msgs[i]
		if !s.known[m.ConversationID] || s.byID[m.ID] != nil {
			continue
		}
		p := &m
		s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], p)
		s.byID[m.ID] = p
	}
	for id := range s.known {
		s.refreshLocked(id)
	}
}

func (s *Store) snapshotLocked(conversationID string) []chat.Message {
	msgs := s.byConv[conversationID]
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

// refreshLocked recomputes the index entry for a conversation while the
// store's mutex is still held, keeping mutation and view atomic.
func (s *Store) refreshLocked(conversationID string) {
	if s.index == nil {
		return
	}
	s.index.Refresh(conversationID, s.snapshotLocked(conversationID))
}

func (s *Store) persistMessageLocked(m chat.Message) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveMessage(m); err != nil {
		s.logger.Warn("persist save failed", zap.Error(err), zap.String("message", m.ID))
	}
}

func (s *Store) persistStatusLocked(messageID string, status chat.Status) {
	if s.persist == nil {
		return
	}
	if err := s.persist.UpdateStatus(messageID, status); err != nil {
		s.logger.Warn("persist status update failed", zap.Error(err), zap.String("message", messageID))
	}
}

func (s *Store) publish(kind, conversationID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:         kind,
		Conversation: conversationID,
		At:           time.Now(),
		Payload:      payload,
	})
}
