package outbox

import (
	"context"
	"time"
)

// Loopback is an in-process TextSender standing in for a real network
// transport. Each stage resolves after the configured latency unless an
// injected error or the context deadline fires first.
type Loopback struct {
	// Latency delays each stage; zero resolves immediately.
	Latency time.Duration
	// SendErr, when set, fails the first stage.
	SendErr error
	// DeliveryErr, when set, fails the second stage.
	DeliveryErr error
}

func (l *Loopback) SendText(ctx context.Context, _, _ string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.SendErr
}

func (l *Loopback) AwaitDelivery(ctx context.Context, _, _ string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.DeliveryErr
}

func (l *Loopback) wait(ctx context.Context) error {
	if l.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(l.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
