package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
)

func TestAwardPointsReopensRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	ana := f.join(t, pin, "Ana")
	b := newRecordingBroadcaster()
	f.scoring.SetBroadcaster(b)

	f.buzzer.AttemptBuzz(ctx, pin, ana)
	p, err := f.scoring.AwardPoints(ctx, pin, ana, 100)
	if err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	if p.Score != 100 {
		t.Fatalf("expected score 100, got %d", p.Score)
	}
	s := f.get(t, pin)
	if s.ActiveBuzzer != "" || s.State != model.SessionPlaying || s.CurrentTrackIndex != 0 {
		t.Fatalf("expected open round on the same track, got %+v", s)
	}

	msgs := b.snapshot()
	if len(msgs) != 1 || msgs[0].playerID != ana || msgs[0].msgType != "round_result" {
		t.Fatalf("expected a round_result to the player, got %+v", msgs)
	}
	if r := msgs[0].payload.(RoundResult); !r.Correct || r.Score != 100 {
		t.Fatalf("unexpected round result %+v", r)
	}
}

func TestAwardPointsValidation(t *testing.T) {
	f := newFixture(t)
	pin := f.playing(t)
	for _, pts := range []int{0, -5} {
		if _, err := f.scoring.AwardPoints(context.Background(), pin, "p1", pts); !errors.Is(err, ErrInvalidPoints) {
			t.Fatalf("points %d: expected ErrInvalidPoints, got %v", pts, err)
		}
	}
}

func TestAwardPointsUnknownPlayerStillReopens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "ghost")

	p, err := f.scoring.AwardPoints(ctx, pin, "ghost", 100)
	if err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	if p != nil {
		t.Fatalf("expected no player, got %+v", p)
	}
	if f.get(t, pin).ActiveBuzzer != "" {
		t.Fatal("round must reopen even when the player is gone")
	}
}

func TestConcurrentAwardsSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	ana := f.join(t, pin, "Ana")
	ben := f.join(t, pin, "Ben")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.scoring.AwardPoints(ctx, pin, ana, 10); err != nil {
				t.Errorf("AwardPoints: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := f.scoring.AwardPoints(ctx, pin, ben, 25); err != nil {
				t.Errorf("AwardPoints: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := f.session.GetPlayer(ctx, pin, ana)
	b, _ := f.session.GetPlayer(ctx, pin, ben)
	if a.Score != 400 || b.Score != 1000 {
		t.Fatalf("expected 400 and 1000, got %d and %d", a.Score, b.Score)
	}
}

func TestRejectBuzzIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "p1")

	if err := f.scoring.RejectBuzz(ctx, pin); err != nil {
		t.Fatalf("RejectBuzz: %v", err)
	}
	v := f.get(t, pin).Version
	if err := f.scoring.RejectBuzz(ctx, pin); err != nil {
		t.Fatalf("second RejectBuzz: %v", err)
	}
	s := f.get(t, pin)
	if s.Version != v {
		t.Fatal("second reject must not write")
	}
	if s.ActiveBuzzer != "" || s.CurrentTrackIndex != 0 {
		t.Fatalf("unexpected session %+v", s)
	}
	if won, _ := f.buzzer.AttemptBuzz(ctx, pin, "p2"); !won {
		t.Fatal("expected round to be open after reject")
	}
}

func TestResolveCorrectAndIncorrect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	ana := f.join(t, pin, "Ana")
	ben := f.join(t, pin, "Ben")

	if _, err := f.scoring.ResolveCorrect(ctx, pin); !errors.Is(err, ErrNoActiveBuzzer) {
		t.Fatalf("expected ErrNoActiveBuzzer, got %v", err)
	}
	if err := f.scoring.ResolveIncorrect(ctx, pin); !errors.Is(err, ErrNoActiveBuzzer) {
		t.Fatalf("expected ErrNoActiveBuzzer, got %v", err)
	}

	f.buzzer.AttemptBuzz(ctx, pin, ben)
	if err := f.scoring.ResolveIncorrect(ctx, pin); err != nil {
		t.Fatalf("ResolveIncorrect: %v", err)
	}
	f.buzzer.AttemptBuzz(ctx, pin, ana)
	p, err := f.scoring.ResolveCorrect(ctx, pin)
	if err != nil {
		t.Fatalf("ResolveCorrect: %v", err)
	}
	if p.ID != ana || p.Score != DefaultPoints {
		t.Fatalf("expected %s with %d points, got %+v", ana, DefaultPoints, p)
	}
	b, _ := f.session.GetPlayer(ctx, pin, ben)
	if b.Score != 0 {
		t.Fatalf("incorrect answer must not score, got %d", b.Score)
	}

	if _, err := f.scoring.ResolveCorrect(ctx, "000000"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// rendezvousStore holds the first n session reads or transactions after arm
// until all n have arrived, so racing callers overlap.
type rendezvousStore struct {
	store.Store
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func (r *rendezvousStore) arm(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = n
	r.release = make(chan struct{})
}

func (r *rendezvousStore) meet() {
	r.mu.Lock()
	ch := r.release
	if ch == nil {
		r.mu.Unlock()
		return
	}
	r.waiting--
	if r.waiting == 0 {
		close(ch)
		r.release = nil
	}
	r.mu.Unlock()
	<-ch
}

func (r *rendezvousStore) GetSession(ctx context.Context, pin string) (*model.Session, error) {
	r.meet()
	return r.Store.GetSession(ctx, pin)
}

func (r *rendezvousStore) TransactSession(ctx context.Context, pin string, fn store.TxFunc) error {
	r.meet()
	return r.Store.TransactSession(ctx, pin, fn)
}

func TestResolveCorrectPaysOncePerBuzz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	ana := f.join(t, pin, "Ana")
	if won, _ := f.buzzer.AttemptBuzz(ctx, pin, ana); !won {
		t.Fatal("expected Ana to win the buzz")
	}

	rs := &rendezvousStore{Store: f.store}
	scoring := NewScoringService(rs, f.events, f.clock, DefaultPoints)
	rs.arm(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = scoring.ResolveCorrect(ctx, pin)
		}(i)
	}
	wg.Wait()

	var ok, none int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNoActiveBuzzer):
			none++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || none != 1 {
		t.Fatalf("expected one award and one ErrNoActiveBuzzer, got %v", errs)
	}
	p, _ := f.session.GetPlayer(ctx, pin, ana)
	if p.Score != DefaultPoints {
		t.Fatalf("expected %d points for one buzz, got %d", DefaultPoints, p.Score)
	}
}

func TestResolveCorrectLeavesNewLockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	ana := f.join(t, pin, "Ana")
	ben := f.join(t, pin, "Ben")

	f.buzzer.AttemptBuzz(ctx, pin, ana)
	if err := f.scoring.ResolveIncorrect(ctx, pin); err != nil {
		t.Fatalf("ResolveIncorrect: %v", err)
	}
	f.buzzer.AttemptBuzz(ctx, pin, ben)

	p, err := f.scoring.ResolveCorrect(ctx, pin)
	if err != nil {
		t.Fatalf("ResolveCorrect: %v", err)
	}
	if p.ID != ben {
		t.Fatalf("expected the current holder %s to score, got %s", ben, p.ID)
	}
	a, _ := f.session.GetPlayer(ctx, pin, ana)
	if a.Score != 0 {
		t.Fatalf("rejected player must not score, got %d", a.Score)
	}
}
