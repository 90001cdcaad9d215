package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/journal"
	"github.com/starford/aislemap/internal/mapservice"
	"github.com/starford/aislemap/internal/mapview"
	"github.com/starford/aislemap/internal/metrics"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/sse"
	"github.com/starford/aislemap/internal/storage"
)

// runtime is the core shared by the HTTP and MCP commands: the document
// store, the live session fed by both collections, removals and the journal.
type runtime struct {
	logger  *slog.Logger
	store   *storage.FS
	journal *journal.DB
	metrics *metrics.Metrics
	session *mapview.Session
	remover *mapview.Remover
	service *mapservice.Service

	subs        []*feed.Subscription
	unsubscribe func()
}

// newRuntime opens the store and journal, builds the session and subscribes
// it to the change feed. broker may be nil.
func newRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, broker *sse.Broker) (*runtime, error) {
	if err := os.MkdirAll(cfg.Feed.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create feed root: %w", err)
	}
	store, err := storage.NewFS(cfg.Feed.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	j, err := journal.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	rt := &runtime{logger: logger, store: store, journal: j}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.New()
	}

	rt.session = mapview.NewSession(cfg.Session.Categories,
		mapview.WithLogger(logger),
		mapview.WithShowAll(cfg.Session.ShowAll))
	rt.unsubscribe = rt.session.Subscribe(func(v models.View) {
		rt.metrics.ObserveView(v)
		if broker != nil {
			broker.PublishView(v)
		}
	})

	rt.remover = mapview.NewRemover(rt.session.Selection(), mapservice.StoreDeleter{Store: store},
		mapview.WithRemovalTimeout(cfg.Removal.Timeout),
		mapview.WithRecorder(j),
		mapview.WithRemoverLogger(logger),
		mapview.OnResolve(func(p *mapview.Pending) {
			state := p.State()
			rt.metrics.RemovalResolved(state.String())
			if state == mapview.StateRolledBack && broker != nil {
				reason := ""
				if err := p.Err(); err != nil {
					reason = err.Error()
				}
				broker.PublishRemovalFailed(p.RecordID, p.Token, reason)
			}
		}))

	rt.service = mapservice.NewService(rt.session, rt.remover, store, j)

	handlers := map[string]feed.Handler{
		models.CollectionMarkers: func(s feed.Snapshot) {
			rt.session.Markers().Apply(s.Documents)
			rt.metrics.SnapshotApplied(s.Collection, len(s.Documents))
		},
		models.CollectionSelectedItems: func(s feed.Snapshot) {
			rt.session.Selection().Apply(s.Documents)
			rt.metrics.SnapshotApplied(s.Collection, len(s.Documents))
		},
	}
	for _, collection := range []string{models.CollectionMarkers, models.CollectionSelectedItems} {
		sub, err := feed.Subscribe(ctx, store, collection, cfg.Feed.Debounce, logger, handlers[collection])
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("subscribe %s: %w", collection, err)
		}
		rt.subs = append(rt.subs, sub)
	}

	return rt, nil
}

// close stops the feed, waits for in-flight removals and releases the
// journal. Safe to call on a partially built runtime.
func (rt *runtime) close() {
	for _, sub := range rt.subs {
		sub.Close()
	}
	rt.remover.Wait()
	rt.unsubscribe()
	rt.session.Close()
	if err := rt.journal.Close(); err != nil {
		rt.logger.Warn("journal close failed", slog.String("error", err.Error()))
	}
}
