// Package directory owns contact and conversation metadata: names,
// phone numbers, group membership and presence. The store and the
// chat-list index read this metadata but never own it.
package directory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lfmartins/courier/internal/bus"
	"github.com/lfmartins/courier/internal/chat"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Contact is an address-book entry.
type Contact struct {
	ID          string
	Name        string
	PhoneNumber string
	Online      bool
	LastSeen    time.Time // last time the contact went offline
}

// Directory holds the session's contacts and conversation metadata.
type Directory struct {
	mu            sync.RWMutex
	viewerID      string
	contacts      map[string]*Contact
	conversations map[string]*chat.Conversation
	bus           *bus.Bus
	logger        *zap.Logger
}

// New creates an empty directory for the given session viewer.
func New(viewerID string, b *bus.Bus, logger *zap.Logger) *Directory {
	return &Directory{
		viewerID:      viewerID,
		contacts:      make(map[string]*Contact),
		conversations: make(map[string]*chat.Conversation),
		bus:           b,
		logger:        logger,
	}
}

// AddContact creates a contact. Duplicate phone numbers are rejected.
func (d *Directory) AddContact(name, phoneNumber string) (Contact, error) {
	if strings.TrimSpace(name) == "" {
		return Contact{}, &chat.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(phoneNumber) == "" {
		return Contact{}, &chat.ValidationError{Field: "phone number", Reason: "must not be empty"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.contacts {
		if c.PhoneNumber == phoneNumber {
			return Contact{}, &chat.ValidationError{Field: "phone number", Reason: "already in use by " + c.Name}
		}
	}
	c := &Contact{
		ID:          uuid.NewString(),
		Name:        name,
		PhoneNumber: phoneNumber,
	}
	d.contacts[c.ID] = c
	return *c, nil
}

// Contact returns a contact by id.
func (d *Directory) Contact(id string) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[id]
	if !ok {
		return Contact{}, &chat.NotFoundError{Kind: "contact", ID: id}
	}
	return *c, nil
}

// Contacts returns all contacts sorted by name.
func (d *Directory) Contacts() []Contact {
	d.mu.RLock()
	out := make([]Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		out = append(out, *c)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateContact changes a contact's name and/or phone number. Empty
// arguments leave the corresponding field untouched.
func (d *Directory) UpdateContact(id, name, phoneNumber string) (Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.contacts[id]
	if !ok {
		return Contact{}, &chat.NotFoundError{Kind: "contact", ID: id}
	}
	if phoneNumber != "" {
		for _, other := range d.contacts {
			if other.ID != id && other.PhoneNumber == phoneNumber {
				return Contact{}, &chat.ValidationError{Field: "phone number", Reason: "already in use by " + other.Name}
			}
		}
		c.PhoneNumber = phoneNumber
	}
	if name != "" {
		c.Name = name
	}
	return *c, nil
}

// DeleteContact removes a contact from the address book. Existing
// conversations with the contact are kept.
func (d *Directory) DeleteContact(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.contacts[id]; !ok {
		return &chat.NotFoundError{Kind: "contact", ID: id}
	}
	delete(d.contacts, id)
	return nil
}

// SearchContacts matches a case-insensitive substring against contact
// names and phone numbers.
func (d *Directory) SearchContacts(query string) []Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	all := d.Contacts()
	if q == "" {
		return all
	}
	return lo.Filter(all, func(c Contact, _ int) bool {
		return strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(c.PhoneNumber, q)
	})
}

// SetPresence records a contact going online or offline. Going offline
// stamps LastSeen. Returns the updated contact so callers can persist
// the stamp.
func (d *Directory) SetPresence(id string, online bool) (Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.contacts[id]
	if !ok {
		return Contact{}, &chat.NotFoundError{Kind: "contact", ID: id}
	}
	if c.Online && !online {
		c.LastSeen = time.Now().UTC()
	}
	c.Online = online
	return *c, nil
}

// CreateDirect opens a 2-party conversation between the viewer and a
// contact. The conversation's display name follows the contact.
func (d *Directory) CreateDirect(contactID string) (chat.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	contact, ok := d.contacts[contactID]
	if !ok {
		return chat.Conversation{}, &chat.NotFoundError{Kind: "contact", ID: contactID}
	}
	for _, conv := range d.conversations {
		if conv.Kind == chat.KindDirect && hasMember(conv, contactID) {
			// Opening an existing direct chat again returns it instead
			// of forking a second thread with the same contact.
			return *conv, nil
		}
	}

	conv := &chat.Conversation{
		ID:          uuid.NewString(),
		Kind:        chat.KindDirect,
		DisplayName: contact.Name,
		MemberIDs:   []string{d.viewerID, contactID},
		CreatedAt:   time.Now().UTC(),
	}
	d.conversations[conv.ID] = conv
	d.publishCreated(*conv)
	return *conv, nil
}

// CreateGroup opens a group conversation with the viewer plus the given
// contacts. At least two members beyond the creator are required.
func (d *Directory) CreateGroup(name string, memberIDs []string) (chat.Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return chat.Conversation{}, &chat.ValidationError{Field: "group name", Reason: "must not be empty"}
	}
	if len(memberIDs) < 2 {
		return chat.Conversation{}, &chat.ValidationError{Field: "members", Reason: "a group needs at least 2 contacts besides you"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range memberIDs {
		if _, ok := d.contacts[id]; !ok {
			return chat.Conversation{}, &chat.NotFoundError{Kind: "contact", ID: id}
		}
	}

	members := append([]string{d.viewerID}, memberIDs...)
	conv := &chat.Conversation{
		ID:          uuid.NewString(),
		Kind:        chat.KindGroup,
		DisplayName: name,
		MemberIDs:   members,
		CreatedAt:   time.Now().UTC(),
	}
	d.conversations[conv.ID] = conv
	d.publishCreated(*conv)
	return *conv, nil
}

// Conversation returns conversation metadata by id.
func (d *Directory) Conversation(id string) (chat.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conv, ok := d.conversations[id]
	if !ok {
		return chat.Conversation{}, &chat.NotFoundError{Kind: "conversation", ID: id}
	}
	return *conv, nil
}

// Conversations returns all conversations in unspecified order; the
// chat-list index applies its own sorting.
func (d *Directory) Conversations() []chat.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]chat.Conversation, 0, len(d.conversations))
	for _, conv := range d.conversations {
		out = append(out, *conv)
	}
	return out
}

// PeerOnline reports the presence of the other party of a direct
// conversation. Groups and unknown conversations report false.
func (d *Directory) PeerOnline(conversationID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conv, ok := d.conversations[conversationID]
	if !ok || conv.Kind != chat.KindDirect {
		return false
	}
	for _, id := range conv.MemberIDs {
		if id == d.viewerID {
			continue
		}
		if c, ok := d.contacts[id]; ok {
			return c.Online
		}
	}
	return false
}

// PeerLastSeen returns when the direct-chat peer was last online.
func (d *Directory) PeerLastSeen(conversationID string) (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conv, ok := d.conversations[conversationID]
	if !ok || conv.Kind != chat.KindDirect {
		return time.Time{}, false
	}
	for _, id := range conv.MemberIDs {
		if id == d.viewerID {
			continue
		}
		if c, ok := d.contacts[id]; ok && !c.LastSeen.IsZero() {
			return c.LastSeen, true
		}
	}
	return time.Time{}, false
}

// RenameGroup changes a group conversation's display name.
func (d *Directory) RenameGroup(conversationID, name string) (chat.Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return chat.Conversation{}, &chat.ValidationError{Field: "group name", Reason: "must not be empty"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, err := d.groupLocked(conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	conv.DisplayName = name
	return *conv, nil
}

// AddGroupMembers adds contacts to a group. Already-present members are
// skipped.
func (d *Directory) AddGroupMembers(conversationID string, memberIDs []string) (chat.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, err := d.groupLocked(conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	for _, id := range memberIDs {
		if _, ok := d.contacts[id]; !ok {
			return chat.Conversation{}, &chat.NotFoundError{Kind: "contact", ID: id}
		}
	}
	for _, id := range memberIDs {
		if !hasMember(conv, id) {
			conv.MemberIDs = append(conv.MemberIDs, id)
		}
	}
	return *conv, nil
}

// RemoveGroupMember removes one member from a group. The group must
// keep at least 2 members.
func (d *Directory) RemoveGroupMember(conversationID, memberID string) (chat.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, err := d.groupLocked(conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if !hasMember(conv, memberID) {
		return chat.Conversation{}, &chat.NotFoundError{Kind: "contact", ID: memberID}
	}
	if len(conv.MemberIDs) <= 2 {
		return chat.Conversation{}, &chat.ValidationError{Field: "members", Reason: "a group needs at least 2 members"}
	}
	conv.MemberIDs = lo.Without(conv.MemberIDs, memberID)
	return *conv, nil
}

// DeleteGroup removes a group conversation's metadata. The service
// layer cascades the message deletion through the store.
func (d *Directory) DeleteGroup(conversationID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.groupLocked(conversationID); err != nil {
		return err
	}
	delete(d.conversations, conversationID)
	return nil
}

// Restore loads previously persisted conversations. No events are
// published while restoring.
func (d *Directory) Restore(convs []chat.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range convs {
		c := convs[i]
		d.conversations[c.ID] = &c
	}
	if d.logger != nil {
		d.logger.Debug("directory restored", zap.Int("conversations", len(convs)))
	}
}

// RestoreContacts loads previously persisted contacts. Everyone starts
// offline; presence is a live signal.
func (d *Directory) RestoreContacts(contacts []Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range contacts {
		c := contacts[i]
		c.Online = false
		d.contacts[c.ID] = &c
	}
}

func (d *Directory) groupLocked(conversationID string) (*chat.Conversation, error) {
	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, &chat.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	if conv.Kind != chat.KindGroup {
		return nil, &chat.ValidationError{Field: "conversation", Reason: "not a group"}
	}
	return conv, nil
}

func (d *Directory) publishCreated(conv chat.Conversation) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(bus.Event{
		Kind:         bus.KindChatCreated,
		Conversation: conv.ID,
		At:           time.Now(),
		Payload:      conv,
	})
}

func hasMember(conv *chat.Conversation, id string) bool {
	return lo.Contains(conv.MemberIDs, id)
}
