package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lfmartins/courier/internal/bus"
	"github.com/lfmartins/courier/internal/chat"
	"github.com/lfmartins/courier/internal/chatlist"
	"github.com/lfmartins/courier/internal/directory"
	"github.com/lfmartins/courier/internal/outbox"
	"github.com/lfmartins/courier/internal/persist"
	"github.com/lfmartins/courier/internal/store"
	"go.uber.org/zap"
)

const viewer = "me"

type fixture struct {
	contacts *ContactService
	chats    *ChatService
	messages *MessageService
	store    *store.Store
	dir      *directory.Directory
}

// newFixture wires the full service stack over a loopback transport.
func newFixture(t *testing.T, sender outbox.TextSender) *fixture {
	t.Helper()
	logger := zap.NewNop()
	b := bus.New()

	st := store.New(b, logger)
	dir := directory.New(viewer, b, logger)
	ix := chatlist.New(st, dir)
	st.BindIndex(ix)

	d := outbox.NewDispatcher(sender, st, b, logger, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})

	return &fixture{
		contacts: NewContactService(dir, nil, logger),
		chats:    NewChatService(dir, st, ix, nil, viewer, logger),
		messages: NewMessageService(st, d, nil, viewer, "Me", logger),
		store:    st,
		dir:      dir,
	}
}

func (f *fixture) directChat(t *testing.T, name, phone string) chat.Conversation {
	t.Helper()
	c, err := f.contacts.Add(name, phone)
	if err != nil {
		t.Fatal(err)
	}
	conv, err := f.chats.StartDirect(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

func waitForStatus(t *testing.T, f *fixture, messageID string, want chat.Status) chat.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m, err := f.store.Message(messageID)
		if err != nil {
			t.Fatal(err)
		}
		if m.Status == want {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	m, _ := f.store.Message(messageID)
	t.Fatalf("message %s stuck at %q, want %q", messageID, m.Status, want)
	return chat.Message{}
}

func TestSendDeliversThroughLoopback(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	conv := f.directChat(t, "John", "+15550001")

	m, err := f.messages.Send(conv.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != chat.StatusSending {
		t.Errorf("immediate status = %q, want sending", m.Status)
	}
	waitForStatus(t, f, m.ID, chat.StatusDelivered)
}

func TestChatListReflectsActivity(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	first := f.directChat(t, "John", "+15550001")
	second := f.directChat(t, "Jane", "+15550002")

	m1, err := f.messages.Send(first.ID, "hi john")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f, m1.ID, chat.StatusDelivered)

	m2, err := f.messages.Send(second.ID, "hi jane")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f, m2.ID, chat.StatusDelivered)

	list := f.chats.List()
	if len(list) != 2 {
		t.Fatalf("got %d chats, want 2", len(list))
	}
	// Jane got the most recent message, so her chat leads.
	if list[0].ConversationID != second.ID {
		t.Errorf("list[0] = %s, want the most recently active chat", list[0].Name)
	}
	if list[0].LastMessage != "hi jane" {
		t.Errorf("list[0].LastMessage = %q", list[0].LastMessage)
	}
	if list[0].LastMessageAt == "" {
		t.Error("expected a formatted timestamp")
	}
}

func TestRetryFailedMessage(t *testing.T) {
	failing := &outbox.Loopback{SendErr: context.DeadlineExceeded}
	f := newFixture(t, failing)
	conv := f.directChat(t, "John", "+15550001")

	m, err := f.messages.Send(conv.ID, "hello?")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f, m.ID, chat.StatusFailed)

	// Clear the fault and retry: a fresh attempt is created, the failed
	// one stays put.
	failing.SendErr = nil
	retry, err := f.messages.Retry(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retry.ID == m.ID {
		t.Fatal("retry reused the failed message id")
	}
	waitForStatus(t, f, retry.ID, chat.StatusDelivered)

	orig, err := f.store.Message(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if orig.Status != chat.StatusFailed {
		t.Errorf("original message status = %q, want failed", orig.Status)
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	conv := f.directChat(t, "John", "+15550001")

	m, err := f.messages.Send(conv.ID, "hello")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f, m.ID, chat.StatusDelivered)

	if _, err := f.messages.Retry(m.ID); !chat.IsValidation(err) {
		t.Fatalf("retrying a delivered message: expected validation error, got %v", err)
	}
}

func TestOpenMarksIncomingRead(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	conv := f.directChat(t, "John", "+15550001")

	// An incoming message lands as sent.
	in, err := f.store.Append(conv.ID, "john", "John", "are you there?")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.ConfirmSent(in.ID); err != nil {
		t.Fatal(err)
	}

	list := f.chats.List()
	if list[0].Unread != 1 {
		t.Fatalf("unread = %d, want 1", list[0].Unread)
	}

	msgs, err := f.messages.Open(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != chat.StatusRead {
		t.Fatalf("after open: %+v", msgs)
	}
	if f.chats.List()[0].Unread != 0 {
		t.Error("unread count survived opening the chat")
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	a, err := f.contacts.Add("Alice", "+15550001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.contacts.Add("Bob", "+15550002")
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.chats.CreateGroup("Trip", []string{a.ID, b.ID})
	if err != nil {
		t.Fatal(err)
	}

	m, err := f.messages.Send(g.ID, "packing list")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, f, m.ID, chat.StatusDelivered)

	if err := f.chats.DeleteGroup(g.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.messages.History(g.ID); !chat.IsNotFound(err) {
		t.Fatalf("deleted group history: expected not-found, got %v", err)
	}
	for _, sum := range f.chats.List() {
		if sum.ConversationID == g.ID {
			t.Fatal("deleted group still listed")
		}
	}
}

func TestDeleteGroupKeepsMetadataOnStoreFailure(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	a, err := f.contacts.Add("Alice", "+15550001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.contacts.Add("Bob", "+15550002")
	if err != nil {
		t.Fatal(err)
	}

	// A group the store never learned about makes the cascade fail.
	g, err := f.dir.CreateGroup("Orphan", []string{a.ID, b.ID})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.chats.DeleteGroup(g.ID); !chat.IsNotFound(err) {
		t.Fatalf("expected not-found from the store cascade, got %v", err)
	}
	// The failure must not leave messages without their conversation:
	// the metadata stays until the cascade succeeds.
	if _, err := f.dir.Conversation(g.ID); err != nil {
		t.Fatalf("group metadata dropped despite failed cascade: %v", err)
	}
}

func TestDeleteGroupRejectsDirectChats(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	conv := f.directChat(t, "John", "+15550001")

	if err := f.chats.DeleteGroup(conv.ID); !chat.IsValidation(err) {
		t.Fatalf("expected validation error for direct chat, got %v", err)
	}
	if _, err := f.messages.History(conv.ID); err != nil {
		t.Fatalf("direct chat lost its messages store entry: %v", err)
	}
}

func TestChatSearch(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	f.directChat(t, "John Smith", "+15550001")
	f.directChat(t, "Johnny Utah", "+15550002")
	f.directChat(t, "Alice", "+15550003")

	if got := f.chats.Search("john"); len(got) != 2 {
		t.Fatalf("search %q: got %d chats, want 2", "john", len(got))
	}
	if got := f.chats.Search(""); len(got) != 3 {
		t.Fatalf("empty query: got %d chats, want 3", len(got))
	}
}

func TestPresencePersistsLastSeen(t *testing.T) {
	db, err := persist.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dir := directory.New(viewer, nil, zap.NewNop())
	contacts := NewContactService(dir, db, zap.NewNop())

	c, err := contacts.Add("John", "+15550001")
	if err != nil {
		t.Fatal(err)
	}
	if err := contacts.SetPresence(c.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := contacts.SetPresence(c.ID, false); err != nil {
		t.Fatal(err)
	}

	// The offline stamp must reach the database, not just memory.
	stored, err := db.LoadContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].LastSeen.IsZero() {
		t.Fatalf("last-seen not persisted: %+v", stored)
	}

	if got := contacts.List(); len(got) != 1 || got[0].LastSeen == "" {
		t.Fatalf("expected a formatted last-seen, got %+v", got)
	}
}

func TestContactServiceRoundTrip(t *testing.T) {
	f := newFixture(t, &outbox.Loopback{})
	c, err := f.contacts.Add("John", "+15550001")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.contacts.Update(c.ID, "John Smith", ""); err != nil {
		t.Fatal(err)
	}
	if got := f.contacts.List(); len(got) != 1 || got[0].Name != "John Smith" {
		t.Fatalf("unexpected contacts: %+v", got)
	}
	if got := f.contacts.Search("555"); len(got) != 1 {
		t.Fatalf("phone search failed: %+v", got)
	}
	if err := f.contacts.Delete(c.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.contacts.List(); len(got) != 0 {
		t.Fatalf("contact survived delete: %+v", got)
	}
}
