package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/aislemap/internal/storage"
)

// DefaultDebounce is the quiet period after the last file event before a
// snapshot is delivered.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives every delivered snapshot. Deliveries for one subscription
// never overlap.
type Handler func(Snapshot)

// Subscription is a live watch over one collection. Close it to stop
// deliveries; no handler call happens after Close returns.
type Subscription struct {
	collection string
	cancel     context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

// Collection returns the watched collection name.
func (s *Subscription) Collection() string { return s.collection }

// Done is closed once the watch loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the watch loop and waits for it to exit. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe delivers the current snapshot of collection to h before
// returning, then keeps watching the collection directory and delivers a
// fresh snapshot after every burst of changes. Snapshots identical to the
// previous delivery are not repeated.
func Subscribe(ctx context.Context, store storage.Provider, collection string, debounce time.Duration, logger *slog.Logger, h Handler) (*Subscription, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir, err := store.Dir(collection)
	if err != nil {
		return nil, err
	}

	// Watch before the initial load so no change can fall between the two.
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("feed: new watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("feed: watch %s: %w", dir, err)
	}

	initial, err := Load(store, collection, logger)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("feed: initial load %s: %w", collection, err)
	}
	h(initial)

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		collection: collection,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go sub.run(ctx, w, store, debounce, logger, h, initial.Checksum)

	logger.Info("feed: subscribed",
		slog.String("collection", collection),
		slog.String("dir", dir),
		slog.Int("documents", len(initial.Documents)))
	return sub, nil
}

func (s *Subscription) run(ctx context.Context, w *fsnotify.Watcher, store storage.Provider, debounce time.Duration, logger *slog.Logger, h Handler, last string) {
	defer close(s.done)
	defer w.Close()

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(debounce)
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("feed: unsubscribed", slog.String("collection", s.collection))
			return

		case <-timerCh:
			timerCh = nil
			snap, err := Load(store, s.collection, logger)
			if err != nil {
				logger.Warn("feed: reload failed",
					slog.String("collection", s.collection),
					slog.String("error", err.Error()))
				continue
			}
			if snap.Checksum == last {
				continue
			}
			last = snap.Checksum
			// A Close racing the timer must not see a late delivery.
			if ctx.Err() != nil {
				return
			}
			logger.Debug("feed: snapshot delivered",
				slog.String("collection", s.collection),
				slog.Int("documents", len(snap.Documents)))
			h(snap)

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !storage.IsDocument(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("feed: watcher error",
				slog.String("collection", s.collection),
				slog.String("error", werr.Error()))
		}
	}
}
