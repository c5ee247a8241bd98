// Package api exposes the daemon's operations as plain services. Each
// service composes the store, chat-list index, directory and outbox
// into the calls a front end issues.
package api

import (
	"github.com/lfmartins/courier/internal/chat"
	"github.com/lfmartins/courier/internal/outbox"
	"github.com/lfmartins/courier/internal/persist"
	"github.com/lfmartins/courier/internal/store"
	"go.uber.org/zap"
)

// MessageService handles sending, retrying and reading messages.
type MessageService struct {
	store      *store.Store
	dispatcher *outbox.Dispatcher
	db         *persist.DB
	viewerID   string
	viewerName string
	logger     *zap.Logger
}

// NewMessageService creates a message service for the session viewer.
// db may be nil when full-text search is not needed.
func NewMessageService(st *store.Store, d *outbox.Dispatcher, db *persist.DB, viewerID, viewerName string, logger *zap.Logger) *MessageService {
	return &MessageService{
		store:      st,
		dispatcher: d,
		db:         db,
		viewerID:   viewerID,
		viewerName: viewerName,
		logger:     logger,
	}
}

// Send appends an outgoing message and hands it to the dispatcher. The
// message is returned immediately in "sending" state; delivery
// confirmations arrive asynchronously.
func (s *MessageService) Send(conversationID, text string) (chat.Message, error) {
	m, err := s.store.Append(conversationID, s.viewerID, s.viewerName, text)
	if err != nil {
		return chat.Message{}, err
	}
	s.dispatcher.Dispatch(m)
	s.logger.Debug("message dispatched",
		zap.String("conversation", conversationID),
		zap.String("message", m.ID))
	return m, nil
}

// Retry re-sends a failed message as a fresh attempt. The failed
// attempt keeps its terminal state; the retry is a new message.
func (s *MessageService) Retry(messageID string) (chat.Message, error) {
	orig, err := s.store.Message(messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if orig.Status != chat.StatusFailed {
		return chat.Message{}, &chat.ValidationError{Field: "message", Reason: "only failed messages can be retried"}
	}
	return s.Send(orig.ConversationID, orig.Text)
}

// Open returns a conversation's messages and marks everything the
// viewer had not read yet as read.
func (s *MessageService) Open(conversationID string) ([]chat.Message, error) {
	if err := s.store.MarkConversationRead(conversationID, s.viewerID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(conversationID)
}

// History returns a conversation's messages without touching read
// state, for previews and exports.
func (s *MessageService) History(conversationID string) ([]chat.Message, error) {
	return s.store.ListMessages(conversationID)
}

// Search runs a full-text query over stored message bodies, optionally
// scoped to one conversation.
func (s *MessageService) Search(query, conversationID string, limit int) ([]persist.SearchResult, error) {
	if s.db == nil {
		return nil, &chat.ValidationError{Field: "search", Reason: "full-text search unavailable without a database"}
	}
	return s.db.SearchMessages(query, conversationID, limit)
}
