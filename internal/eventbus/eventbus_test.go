package eventbus

import (
	"context"
	"errors"
	"testing"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("relay down")
}

func (f *failingPublisher) Close() error { return nil }

func TestEmitSwallowsErrors(t *testing.T) {
	p := &failingPublisher{}
	Emit(context.Background(), p, Event{Type: BuzzWon, PIN: "123456"})
	if p.calls != 1 {
		t.Fatalf("expected one publish attempt, got %d", p.calls)
	}
	Emit(context.Background(), nil, Event{Type: BuzzWon, PIN: "123456"})
}

type ctxRecorder struct{ err error }

func (c *ctxRecorder) Publish(ctx context.Context, _ Event) error {
	c.err = ctx.Err()
	return c.err
}

func (c *ctxRecorder) Close() error { return nil }

func TestEmitOutlivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &ctxRecorder{}
	Emit(ctx, p, Event{Type: BuzzWon, PIN: "123456", PlayerID: "p_1"})
	if p.err != nil {
		t.Fatalf("publish saw a cancelled context: %v", p.err)
	}
}

func TestSubject(t *testing.T) {
	p := NewNATSPublisher(nil, "pulsequiz")
	got := p.Subject(Event{Type: RoundResolved, PIN: "654321"})
	if got != "pulsequiz.654321.round.resolved" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{Type: SessionEnded}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
