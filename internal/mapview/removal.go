package mapview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/aislemap/internal/apperr"
)

// DefaultRemovalTimeout bounds how long a delete intent may go unanswered
// before the removal is rolled back.
const DefaultRemovalTimeout = 10 * time.Second

// State is the lifecycle state of a removal.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Deleter issues the external delete for a selection record.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(ctx context.Context, id string) error

// Delete calls f.
func (f DeleterFunc) Delete(ctx context.Context, id string) error { return f(ctx, id) }

// Recorder keeps an audit trail of removals.
type Recorder interface {
	Begin(token, recordID string, at time.Time) error
	Resolve(token string, state State, cause error, at time.Time) error
}

// Pending is the token of one in-flight or resolved removal.
type Pending struct {
	Token     string
	RecordID  string
	StartedAt time.Time

	done  chan struct{}
	mu    sync.Mutex
	state State
	err   error
}

// State returns the current state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the failure of a rolled back removal.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the removal resolves.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the removal resolves or ctx ends. A rolled back removal
// returns an error wrapping apperr.ErrRemovalFailed.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(state State, err error) {
	p.mu.Lock()
	p.state = state
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// RemoverOption configures a Remover.
type RemoverOption func(*Remover)

// WithRemovalTimeout bounds the wait for the external acknowledgment.
func WithRemovalTimeout(d time.Duration) RemoverOption {
	return func(r *Remover) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(rec Recorder) RemoverOption {
	return func(r *Remover) { r.recorder = rec }
}

// WithRemoverLogger sets the remover logger.
func WithRemoverLogger(l *slog.Logger) RemoverOption {
	return func(r *Remover) { r.logger = l }
}

// OnResolve registers a callback run after every removal resolves.
func OnResolve(fn func(*Pending)) RemoverOption {
	return func(r *Remover) { r.onResolve = append(r.onResolve, fn) }
}

// Remover runs optimistic removals against a SelectionStore. At most one
// removal per record id is in flight at a time.
type Remover struct {
	selection *SelectionStore
	deleter   Deleter
	timeout   time.Duration
	recorder  Recorder
	logger    *slog.Logger
	onResolve []func(*Pending)
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*Pending
	wg      sync.WaitGroup
}

// NewRemover returns a Remover for selection that sends delete intents to d.
func NewRemover(selection *SelectionStore, d Deleter, opts ...RemoverOption) *Remover {
	r := &Remover{
		selection: selection,
		deleter:   d,
		timeout:   DefaultRemovalTimeout,
		now:       time.Now,
		pending:   make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Remove hides the record immediately and sends one delete intent. A second
// call for an id that is still pending returns the existing token without a
// new intent. Unknown ids return apperr.ErrNotFound.
//
// The intent outlives ctx cancellation; only the removal timeout bounds it.
func (r *Remover) Remove(ctx context.Context, id string) (*Pending, error) {
	r.mu.Lock()
	if p, ok := r.pending[id]; ok {
		r.mu.Unlock()
		r.logger.Debug("removal: already pending",
			slog.String("id", id),
			slog.String("token", p.Token))
		return p, nil
	}
	p := &Pending{
		Token:     uuid.NewString(),
		RecordID:  id,
		StartedAt: r.now(),
		done:      make(chan struct{}),
		state:     StatePending,
	}
	r.pending[id] = p
	r.wg.Add(1)
	r.mu.Unlock()

	// Hiding the record runs session subscribers, which may call back into
	// the Remover, so r.mu must not be held here.
	hold, ok := r.selection.Remove(id)
	if !ok {
		err := fmt.Errorf("removal: %s: %w", id, apperr.ErrNotFound)
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		p.resolve(StateIdle, err)
		r.wg.Done()
		return nil, err
	}

	if r.recorder != nil {
		if err := r.recorder.Begin(p.Token, id, p.StartedAt); err != nil {
			r.logger.Warn("removal: journal begin failed",
				slog.String("token", p.Token),
				slog.String("error", err.Error()))
		}
	}
	r.logger.Info("removal: pending", slog.String("id", id), slog.String("token", p.Token))

	intentCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.finish(p, hold, r.send(intentCtx, id))
	}()
	return p, nil
}

// Pending returns the in-flight removal for id, if any.
func (r *Remover) Pending(id string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

// State returns the removal state of a record id: StatePending while a
// removal is in flight, StateIdle otherwise.
func (r *Remover) State(id string) State {
	if _, ok := r.Pending(id); ok {
		return StatePending
	}
	return StateIdle
}

// Wait blocks until every in-flight removal has resolved.
func (r *Remover) Wait() {
	r.wg.Wait()
}

// send runs the delete and treats a missing acknowledgment within the
// deadline as a failure, even if the deleter ignores ctx.
func (r *Remover) send(ctx context.Context, id string) error {
	result := make(chan error, 1)
	go func() {
		result <- r.deleter.Delete(ctx, id)
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("no acknowledgment: %w", ctx.Err())
	}
}

func (r *Remover) finish(p *Pending, hold *Hold, cause error) {
	state := StateCommitted
	var err error
	if cause != nil {
		state = StateRolledBack
		err = fmt.Errorf("%w: %s: %w", apperr.ErrRemovalFailed, p.RecordID, cause)
		hold.Restore()
	} else {
		hold.Commit()
	}

	r.mu.Lock()
	delete(r.pending, p.RecordID)
	r.mu.Unlock()
	p.resolve(state, err)

	if r.recorder != nil {
		if jerr := r.recorder.Resolve(p.Token, state, cause, r.now()); jerr != nil {
			r.logger.Warn("removal: journal resolve failed",
				slog.String("token", p.Token),
				slog.String("error", jerr.Error()))
		}
	}

	if cause != nil {
		level := slog.LevelWarn
		if errors.Is(cause, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		r.logger.Log(context.Background(), level, "removal: rolled back",
			slog.String("id", p.RecordID),
			slog.String("token", p.Token),
			slog.String("error", cause.Error()))
	} else {
		r.logger.Info("removal: committed",
			slog.String("id", p.RecordID),
			slog.String("token", p.Token))
	}

	for _, fn := range r.onResolve {
		fn(p)
	}
}
