// Package outbox carries outgoing messages across the transport
// boundary. The store's Append returns before anything here runs; the
// dispatcher feeds transport acknowledgments back into the store, which
// absorbs duplicates and out-of-order callbacks as no-ops.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/lfmartins/courier/internal/bus"
	"github.com/lfmartins/courier/internal/chat"
	"go.uber.org/zap"
)

// TextSender is the transport collaborator contract. SendText resolves
// when the server accepts the message (first-stage ack); AwaitDelivery
// resolves when the recipient's client has received it (second stage).
type TextSender interface {
	SendText(ctx context.Context, conversationID, text string) error
	AwaitDelivery(ctx context.Context, conversationID, messageID string) error
}

// Acker is the slice of the store the dispatcher mutates through.
type Acker interface {
	ConfirmSent(messageID string) error
	ConfirmDelivered(messageID string) error
	MarkFailed(messageID string) error
}

// Dispatcher sends each appended message on its own goroutine and wires
// the transport's resolution back into the message state machine.
type Dispatcher struct {
	sender  TextSender
	store   Acker
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration // bound on a stuck send; zero disables

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds how long a message
// may stay in sending state before it is marked failed.
func NewDispatcher(sender TextSender, store Acker, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		store:   store,
		bus:     b,
		logger:  logger,
		timeout: timeout,
	}
}

// Start makes the dispatcher accept work until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()
}

// Stop cancels in-flight sends and waits for their goroutines to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Dispatch hands an appended message to the transport. Returns
// immediately; the send runs on its own goroutine.
func (d *Dispatcher) Dispatch(m chat.Message) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		// Not started: the message stays in sending state.
		d.logger.Warn("dispatch before start", zap.String("message", m.ID))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(ctx, m)
	}()
}

func (d *Dispatcher) send(ctx context.Context, m chat.Message) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.sender.SendText(ctx, m.ConversationID, m.Text); err != nil {
		d.logger.Warn("send failed",
			zap.Error(err),
			zap.String("message", m.ID),
			zap.String("conversation", m.ConversationID))
		if ferr := d.store.MarkFailed(m.ID); ferr != nil {
			d.logger.Error("mark failed", zap.Error(ferr), zap.String("message", m.ID))
		}
		return
	}
	if err := d.store.ConfirmSent(m.ID); err != nil {
		d.logger.Error("confirm sent", zap.Error(err), zap.String("message", m.ID))
		return
	}

	// Second stage. A failure here is not a send failure: the server
	// already accepted the message, so it stays at sent and the delivery
	// receipt may still arrive in a later session.
	if err := d.sender.AwaitDelivery(ctx, m.ConversationID, m.ID); err != nil {
		d.logger.Warn("delivery receipt not observed",
			zap.Error(err),
			zap.String("message", m.ID))
		return
	}
	if err := d.store.ConfirmDelivered(m.ID); err != nil {
		d.logger.Error("confirm delivered", zap.Error(err), zap.String("message", m.ID))
	}
}
