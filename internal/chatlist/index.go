// Package chatlist derives the chat-list view: per-conversation
// previews with last message, unread count and recency ordering. The
// index is a materialized view over the store; it never owns message
// state and never mutates it.
package chatlist

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lfmartins/courier/internal/chat"
	"github.com/samber/lo"
)

// MessageSource provides canonical messages for recomputation.
type MessageSource interface {
	ListMessages(conversationID string) ([]chat.Message, error)
}

// Directory supplies the conversation metadata the index reads but does
// not own: display names, kinds and peer presence.
type Directory interface {
	Conversations() []chat.Conversation
	PeerOnline(conversationID string) bool
}

// entry is the reduced per-conversation state. Unread counts are
// viewer-relative, so the entry keeps per-sender pending tallies and
// resolves the viewer at read time.
type entry struct {
	last            *lastSnapshot
	pendingBySender map[string]int
	totalPending    int
}

type lastSnapshot struct {
	senderID  string
	text      string
	createdAt time.Time
	status    chat.Status
}

// Index maintains the materialized previews.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	source  MessageSource
	dir     Directory
}

// New creates an empty index over the given source and directory.
func New(source MessageSource, dir Directory) *Index {
	return &Index{
		entries: make(map[string]*entry),
		source:  source,
		dir:     dir,
	}
}

// Touch recomputes the preview state for one conversation by reading
// the store. The store itself calls Refresh inside its critical
// section; Touch exists for callers outside that section.
func (ix *Index) Touch(conversationID string) error {
	msgs, err := ix.source.ListMessages(conversationID)
	if err != nil {
		return err
	}
	ix.Refresh(conversationID, msgs)
	return nil
}

// Refresh replaces the conversation's derived state from a message
// snapshot. Invoked by the store while it still holds its mutation
// lock, so a preview never pairs a status with a stale unread count.
func (ix *Index) Refresh(conversationID string, msgs []chat.Message) {
	e := &entry{pendingBySender: make(map[string]int)}
	for i := range msgs {
		m := &msgs[i]
		if chat.Pending(m.Status) {
			e.pendingBySender[m.SenderID]++
			e.totalPending++
		}
		if e.last == nil || !m.CreatedAt.Before(e.last.createdAt) {
			e.last = &lastSnapshot{
				senderID:  m.SenderID,
				text:      m.Text,
				createdAt: m.CreatedAt,
				status:    m.Status,
			}
		}
	}

	ix.mu.Lock()
	ix.entries[conversationID] = e
	ix.mu.Unlock()
}

// Drop removes a deleted conversation from the view.
func (ix *Index) Drop(conversationID string) {
	ix.mu.Lock()
	delete(ix.entries, conversationID)
	ix.mu.Unlock()
}

// UnreadCount returns the number of messages in the conversation
// authored by someone other than viewerID that are still pending.
func (ix *Index) UnreadCount(conversationID, viewerID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[conversationID]
	if !ok {
		return 0
	}
	return e.totalPending - e.pendingBySender[viewerID]
}

// Previews returns all conversation previews sorted by last-message
// time descending. Conversations without messages sort last, ordered
// among themselves by conversation creation time descending.
func (ix *Index) Previews(viewerID string) []chat.Preview {
	convs := ix.dir.Conversations()

	ix.mu.RLock()
	previews := make([]chat.Preview, 0, len(convs))
	for _, c := range convs {
		previews = append(previews, ix.previewLocked(c, viewerID))
	}
	ix.mu.RUnlock()

	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i], previews[j]
		switch {
		case a.LastMessage != nil && b.LastMessage != nil:
			return a.LastMessage.CreatedAt.After(b.LastMessage.CreatedAt)
		case a.LastMessage != nil:
			return true
		case b.LastMessage != nil:
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return previews
}

// Search filters previews by case-insensitive substring match on the
// conversation display name. An empty query returns everything.
func (ix *Index) Search(viewerID, query string) []chat.Preview {
	q := strings.ToLower(strings.TrimSpace(query))
	previews := ix.Previews(viewerID)
	if q == "" {
		return previews
	}
	return lo.Filter(previews, func(p chat.Preview, _ int) bool {
		return strings.Contains(strings.ToLower(p.DisplayName), q)
	})
}

func (ix *Index) previewLocked(c chat.Conversation, viewerID string) chat.Preview {
	p := chat.Preview{
		ConversationID: c.ID,
		DisplayName:    c.DisplayName,
		Kind:           c.Kind,
		CreatedAt:      c.CreatedAt,
	}
	if c.Kind == chat.KindDirect {
		p.Online = ix.dir.PeerOnline(c.ID)
	}
	e, ok := ix.entries[c.ID]
	if !ok {
		return p
	}
	p.UnreadCount = e.totalPending - e.pendingBySender[viewerID]
	if e.last != nil {
		p.LastMessage = &chat.LastMessage{
			Text:         e.last.text,
			CreatedAt:    e.last.createdAt,
			IsOwnMessage: e.last.senderID == viewerID,
			Status:       e.last.status,
		}
	}
	return p
}
