package api

import (
	"time"

	"github.com/lfmartins/courier/internal/chat"
	"github.com/lfmartins/courier/internal/chatlist"
	"github.com/lfmartins/courier/internal/directory"
	"github.com/lfmartins/courier/internal/persist"
	"github.com/lfmartins/courier/internal/store"
	"github.com/lfmartins/courier/internal/timefmt"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ChatSummary is a display-ready conversation row.
type ChatSummary struct {
	ConversationID string
	Name           string
	Kind           chat.Kind
	LastMessage    string
	LastMessageAt  string
	Unread         int
	Online         bool
}

// ChatService manages conversations: creation, membership and the
// ordered chat list.
type ChatService struct {
	dir    *directory.Directory
	store  *store.Store
	index  *chatlist.Index
	db     *persist.DB
	viewer string
	logger *zap.Logger
}

// NewChatService creates a chat service. db may be nil in tests.
func NewChatService(dir *directory.Directory, st *store.Store, ix *chatlist.Index, db *persist.DB, viewerID string, logger *zap.Logger) *ChatService {
	return &ChatService{
		dir:    dir,
		store:  st,
		index:  ix,
		db:     db,
		viewer: viewerID,
		logger: logger,
	}
}

// List returns every conversation ordered by recent activity.
func (s *ChatService) List() []ChatSummary {
	return s.summaries(s.index.Previews(s.viewer))
}

// Search filters the chat list by a case-insensitive name fragment,
// preserving the list's ordering.
func (s *ChatService) Search(query string) []ChatSummary {
	return s.summaries(s.index.Search(s.viewer, query))
}

// StartDirect opens (or reopens) a 2-party conversation with a contact.
func (s *ChatService) StartDirect(contactID string) (chat.Conversation, error) {
	conv, err := s.dir.CreateDirect(contactID)
	if err != nil {
		return chat.Conversation{}, err
	}
	s.register(conv)
	return conv, nil
}

// CreateGroup opens a group conversation.
func (s *ChatService) CreateGroup(name string, memberIDs []string) (chat.Conversation, error) {
	conv, err := s.dir.CreateGroup(name, memberIDs)
	if err != nil {
		return chat.Conversation{}, err
	}
	s.register(conv)
	return conv, nil
}

// RenameGroup changes a group's display name.
func (s *ChatService) RenameGroup(conversationID, name string) (chat.Conversation, error) {
	conv, err := s.dir.RenameGroup(conversationID, name)
	if err != nil {
		return chat.Conversation{}, err
	}
	s.save(conv)
	return conv, nil
}

// AddMembers adds contacts to a group.
func (s *ChatService) AddMembers(conversationID string, memberIDs []string) (chat.Conversation, error) {
	conv, err := s.dir.AddGroupMembers(conversationID, memberIDs)
	if err != nil {
		return chat.Conversation{}, err
	}
	s.save(conv)
	return conv, nil
}

// RemoveMember removes one contact from a group.
func (s *ChatService) RemoveMember(conversationID, memberID string) (chat.Conversation, error) {
	conv, err := s.dir.RemoveGroupMember(conversationID, memberID)
	if err != nil {
		return chat.Conversation{}, err
	}
	s.save(conv)
	return conv, nil
}

// DeleteGroup removes a group and every message in it. The message
// cascade runs before the metadata is dropped, so a store failure
// leaves the group fully intact instead of half-deleted.
func (s *ChatService) DeleteGroup(conversationID string) error {
	conv, err := s.dir.Conversation(conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != chat.KindGroup {
		return &chat.ValidationError{Field: "conversation", Reason: "not a group"}
	}
	if err := s.store.DeleteConversation(conversationID); err != nil {
		return err
	}
	if err := s.dir.DeleteGroup(conversationID); err != nil {
		return err
	}
	s.logger.Info("group deleted", zap.String("conversation", conversationID))
	return nil
}

func (s *ChatService) register(conv chat.Conversation) {
	s.store.AddConversation(conv)
	s.save(conv)
}

func (s *ChatService) save(conv chat.Conversation) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveConversation(conv); err != nil {
		s.logger.Warn("persist conversation", zap.String("conversation", conv.ID), zap.Error(err))
	}
}

func (s *ChatService) summaries(previews []chat.Preview) []ChatSummary {
	now := time.Now()
	return lo.Map(previews, func(p chat.Preview, _ int) ChatSummary {
		sum := ChatSummary{
			ConversationID: p.ConversationID,
			Name:           p.DisplayName,
			Kind:           p.Kind,
			Unread:         p.UnreadCount,
			Online:         p.Online,
		}
		if p.LastMessage != nil {
			sum.LastMessage = p.LastMessage.Text
			sum.LastMessageAt = timefmt.MessageTime(p.LastMessage.CreatedAt, now)
		}
		return sum
	})
}
