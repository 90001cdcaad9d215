package mapview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/models"
)

// gatedDeleter blocks every delete until release is closed, then returns err.
type gatedDeleter struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func newGatedDeleter(err error) *gatedDeleter {
	return &gatedDeleter{release: make(chan struct{}), err: err}
}

func (d *gatedDeleter) Delete(ctx context.Context, _ string) error {
	d.calls.Add(1)
	select {
	case <-d.release:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type memRecorder struct {
	mu     sync.Mutex
	begun  []string
	states map[string]State
}

func (m *memRecorder) Begin(token, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun = append(m.begun, token)
	return nil
}

func (m *memRecorder) Resolve(token string, state State, _ error, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]State)
	}
	m.states[token] = state
	return nil
}

func waitResolved(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && p.State() == StatePending {
		t.Fatal("removal did not resolve")
	}
	return err
}

func TestRemove_OptimisticThenCommit(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	rec := &memRecorder{}
	r := NewRemover(s.Selection(), d, WithRecorder(rec))

	p, err := r.Remove(context.Background(), "i1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if p.State() != StatePending || r.State("i1") != StatePending {
		t.Fatalf("state = %v", p.State())
	}
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/1", "B/Y/1"}) {
		t.Errorf("optimistic grouped = %v", groupSummary(s.View().Grouped))
	}

	close(d.release)
	if err := waitResolved(t, p); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if p.State() != StateCommitted || r.State("i1") != StateIdle {
		t.Errorf("state = %v / %v", p.State(), r.State("i1"))
	}
	// Still hidden until the feed confirms.
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/1", "B/Y/1"}) {
		t.Errorf("committed grouped = %v", groupSummary(s.View().Grouped))
	}
	r.Wait()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.begun) != 1 || rec.states[p.Token] != StateCommitted {
		t.Errorf("journal = %v %v", rec.begun, rec.states)
	}
}

func TestRemove_CommitSurvivesStaleSnapshotUntilConfirmed(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	close(d.release)
	r := NewRemover(s.Selection(), d)

	p, _ := r.Remove(context.Background(), "i3")
	_ = waitResolved(t, p)

	// A stale delivery still containing i3 keeps it hidden.
	s.Selection().Apply([]feed.Document{
		itemDoc("i1", "A", "X"),
		itemDoc("i2", "A", "X"),
		itemDoc("i3", "B", "Y"),
	})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2"}) {
		t.Errorf("stale snapshot grouped = %v", groupSummary(s.View().Grouped))
	}

	// The confirming snapshot drops it; a later re-add with the same id shows again.
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X")})
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "B", "Y")})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("re-added grouped = %v", groupSummary(s.View().Grouped))
	}
}

func TestRemove_CommittedHideLastsOneStaleSnapshot(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	close(d.release)
	r := NewRemover(s.Selection(), d)

	p, _ := r.Remove(context.Background(), "i3")
	_ = waitResolved(t, p)

	stale := []feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "B", "Y")}
	s.Selection().Apply(stale)
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2"}) {
		t.Errorf("first stale snapshot grouped = %v", groupSummary(s.View().Grouped))
	}
	// The store still has it after another delivery: it is live, show it.
	s.Selection().Apply(stale)
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("second snapshot grouped = %v", groupSummary(s.View().Grouped))
	}
}

func TestRemove_CommittedIDWithNewContentShows(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	close(d.release)
	r := NewRemover(s.Selection(), d)

	p, _ := r.Remove(context.Background(), "i3")
	_ = waitResolved(t, p)

	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "C", "Y")})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "C/Y/1"}) {
		t.Errorf("grouped = %v", groupSummary(s.View().Grouped))
	}
}

func TestRemove_PendingSurvivesReappliedSnapshot(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(errors.New("store offline"))
	r := NewRemover(s.Selection(), d)

	p, err := r.Remove(context.Background(), "i1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "B", "Y")})
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "B", "Y")})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/1", "B/Y/1"}) {
		t.Errorf("pending grouped = %v", groupSummary(s.View().Grouped))
	}
	if p.State() != StatePending {
		t.Fatalf("state = %v", p.State())
	}

	close(d.release)
	if err := waitResolved(t, p); !errors.Is(err, apperr.ErrRemovalFailed) {
		t.Fatalf("err = %v, want ErrRemovalFailed", err)
	}
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("restored grouped = %v", groupSummary(s.View().Grouped))
	}
	if s.View().Grouped[0].ID != "i1" {
		t.Errorf("representative = %q, want i1", s.View().Grouped[0].ID)
	}
}

func TestRemove_SnapshotDropsRecordBeforeCommit(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	r := NewRemover(s.Selection(), d)

	p, _ := r.Remove(context.Background(), "i3")
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X")})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2"}) {
		t.Errorf("grouped = %v", groupSummary(s.View().Grouped))
	}

	close(d.release)
	if err := waitResolved(t, p); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	// Nothing left to hide: a later record with the same id is new.
	s.Selection().Apply([]feed.Document{itemDoc("i1", "A", "X"), itemDoc("i2", "A", "X"), itemDoc("i3", "B", "Y")})
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("re-added grouped = %v", groupSummary(s.View().Grouped))
	}
}

func TestRemove_SubscriberMayQueryRemover(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	r := NewRemover(s.Selection(), d)

	var mu sync.Mutex
	var seen []State
	unsubscribe := s.Subscribe(func(models.View) {
		st := r.State("i1")
		_, _ = r.Pending("i1")
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer unsubscribe()

	done := make(chan *Pending, 1)
	go func() {
		p, _ := r.Remove(context.Background(), "i1")
		done <- p
	}()

	var p *Pending
	select {
	case p = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Remove blocked on a subscriber querying the remover")
	}
	if p == nil {
		t.Fatal("Remove returned no pending removal")
	}

	mu.Lock()
	if len(seen) == 0 || seen[0] != StatePending {
		t.Errorf("subscriber saw %v, want pending first", seen)
	}
	mu.Unlock()

	close(d.release)
	_ = waitResolved(t, p)
	r.Wait()
}

func TestRemove_FailureRollsBack(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(errors.New("permission denied"))
	var resolved atomic.Int32
	r := NewRemover(s.Selection(), d, OnResolve(func(*Pending) { resolved.Add(1) }))

	p, err := r.Remove(context.Background(), "i3")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2"}) {
		t.Errorf("optimistic grouped = %v", groupSummary(s.View().Grouped))
	}
	if !equal(markerIDs(s.View().Visible), []string{"mx1"}) {
		t.Errorf("optimistic visible = %v", markerIDs(s.View().Visible))
	}

	close(d.release)
	err = waitResolved(t, p)
	if !errors.Is(err, apperr.ErrRemovalFailed) {
		t.Fatalf("err = %v, want ErrRemovalFailed", err)
	}
	if p.State() != StateRolledBack {
		t.Errorf("state = %v", p.State())
	}
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("restored grouped = %v", groupSummary(s.View().Grouped))
	}
	if !equal(markerIDs(s.View().Visible), []string{"mx1", "my1"}) {
		t.Errorf("restored visible = %v", markerIDs(s.View().Visible))
	}
	r.Wait()
	if resolved.Load() != 1 {
		t.Errorf("resolve hooks = %d", resolved.Load())
	}
}

func TestRemove_RollbackRestoresQuantity(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(errors.New("boom"))
	r := NewRemover(s.Selection(), d)

	p, _ := r.Remove(context.Background(), "i1")
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/1", "B/Y/1"}) {
		t.Errorf("optimistic grouped = %v", groupSummary(s.View().Grouped))
	}
	close(d.release)
	_ = waitResolved(t, p)
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("restored grouped = %v", groupSummary(s.View().Grouped))
	}
	if s.View().Grouped[0].ID != "i1" {
		t.Errorf("representative = %q, want i1 back in first position", s.View().Grouped[0].ID)
	}
}

func TestRemove_TimeoutRollsBack(t *testing.T) {
	s := seededSession(t, "X", "Y")
	// Ignores ctx and answers only after the test is over.
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	hang := DeleterFunc(func(context.Context, string) error {
		<-stop
		return nil
	})
	r := NewRemover(s.Selection(), hang, WithRemovalTimeout(30*time.Millisecond))

	p, err := r.Remove(context.Background(), "i3")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	err = waitResolved(t, p)
	if !errors.Is(err, apperr.ErrRemovalFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want removal failure from deadline", err)
	}
	if !equal(groupSummary(s.View().Grouped), []string{"A/X/2", "B/Y/1"}) {
		t.Errorf("grouped = %v", groupSummary(s.View().Grouped))
	}
}

func TestRemove_DuplicateReturnsSameToken(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	r := NewRemover(s.Selection(), d)

	first, err := r.Remove(context.Background(), "i1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	second, err := r.Remove(context.Background(), "i1")
	if err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if first != second {
		t.Error("duplicate removal should return the pending token")
	}
	close(d.release)
	_ = waitResolved(t, first)
	r.Wait()
	if d.calls.Load() != 1 {
		t.Errorf("delete intents = %d, want 1", d.calls.Load())
	}
}

func TestRemove_UnknownID(t *testing.T) {
	s := seededSession(t, "X")
	d := newGatedDeleter(nil)
	r := NewRemover(s.Selection(), d)
	if _, err := r.Remove(context.Background(), "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if d.calls.Load() != 0 {
		t.Error("no intent should be sent for unknown ids")
	}
}

func TestRemove_OutlivesCallerContext(t *testing.T) {
	s := seededSession(t, "X", "Y")
	d := newGatedDeleter(nil)
	r := NewRemover(s.Selection(), d)

	ctx, cancel := context.WithCancel(context.Background())
	p, _ := r.Remove(ctx, "i1")
	cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait with cancelled ctx = %v", err)
	}
	close(d.release)
	if err := waitResolved(t, p); err != nil {
		t.Errorf("removal should still commit: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateRolledBack.String() != "rolled_back" || StatePending.String() != "pending" {
		t.Error("unexpected state names")
	}
}
