package mapview

import (
	"io"
	"log/slog"
	"sync"

	"github.com/starford/aislemap/internal/models"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithShowAll sets the initial show-all flag.
func WithShowAll(v bool) SessionOption {
	return func(s *Session) { s.showAll = v }
}

// Session is one screen session: the two stores, the accepted categories
// and the show-all flag, plus the derived view recomputed from them.
//
// Subscribers run outside the session lock and see views in recompute
// order. They may read from the session and query a Remover (State,
// Pending), which is safe even while a removal is hiding its record. They
// must not mutate the session, its stores or start removals.
type Session struct {
	markers   *MarkerStore
	selection *SelectionStore
	accepted  CategorySet
	logger    *slog.Logger

	mu      sync.Mutex
	showAll bool
	grouped []models.GroupedEntry
	view    models.View
	seq     uint64
	subs    map[int]func(models.View)
	nextSub int

	notifyMu sync.Mutex
	notified uint64

	detach []func()
}

// NewSession builds a session over fresh stores. accepted is copied and
// never changes for the lifetime of the session.
func NewSession(accepted []string, opts ...SessionOption) *Session {
	s := &Session{
		markers:   NewMarkerStore(),
		selection: NewSelectionStore(),
		accepted:  NewCategorySet(accepted...),
		subs:      make(map[int]func(models.View)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s.grouped = []models.GroupedEntry{}
	s.view = models.View{
		Visible: []models.MarkerRecord{},
		Grouped: []models.GroupedEntry{},
		ShowAll: s.showAll,
	}
	s.detach = []func(){
		s.markers.OnChange(s.onMarkers),
		s.selection.OnChange(s.onSelection),
	}
	return s
}

// Markers returns the marker store.
func (s *Session) Markers() *MarkerStore { return s.markers }

// Selection returns the selection store.
func (s *Session) Selection() *SelectionStore { return s.selection }

// Accepted returns the accepted categories in sorted order.
func (s *Session) Accepted() []string { return s.accepted.List() }

// View returns the current derived view.
func (s *Session) View() models.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneView(s.view)
}

// ShowAll reports the show-all flag.
func (s *Session) ShowAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showAll
}

// SetShowAll sets the show-all flag and recomputes the visible markers.
func (s *Session) SetShowAll(v bool) {
	s.mu.Lock()
	if s.showAll == v {
		s.mu.Unlock()
		return
	}
	s.showAll = v
	s.refilterLocked()
	s.publishLocked()
}

// ToggleShowAll flips the show-all flag and returns the new value.
func (s *Session) ToggleShowAll() bool {
	s.mu.Lock()
	s.showAll = !s.showAll
	v := s.showAll
	s.refilterLocked()
	s.publishLocked()
	return v
}

// Subscribe registers fn for every recomputed view. The returned func
// unsubscribes it.
func (s *Session) Subscribe(fn func(models.View)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// ImageFor returns the image of the first grouped entry sharing the
// marker's category, when that entry has one.
func (s *Session) ImageFor(markerID string) (string, bool) {
	m, ok := s.markers.Get(markerID)
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grouped {
		if g.Category == m.Category {
			return g.ImageURL, g.ImageURL != ""
		}
	}
	return "", false
}

// Close detaches the session from its stores and drops all subscribers.
func (s *Session) Close() {
	for _, fn := range s.detach {
		fn()
	}
	s.mu.Lock()
	s.subs = make(map[int]func(models.View))
	s.mu.Unlock()
}

func (s *Session) onSelection() {
	s.mu.Lock()
	s.grouped = Group(s.selection.Snapshot(), s.accepted)
	s.refilterLocked()
	s.publishLocked()
}

func (s *Session) onMarkers() {
	s.mu.Lock()
	s.refilterLocked()
	s.publishLocked()
}

func (s *Session) refilterLocked() {
	visible, unmatched := Visible(s.markers.Snapshot(), s.grouped, s.showAll)
	for _, c := range unmatched {
		s.logger.Debug("mapview: no marker for category", slog.String("category", c))
	}
	s.view = models.View{
		Visible:   visible,
		Grouped:   append([]models.GroupedEntry(nil), s.grouped...),
		ShowAll:   s.showAll,
		Unmatched: unmatched,
	}
	if s.view.Grouped == nil {
		s.view.Grouped = []models.GroupedEntry{}
	}
}

// publishLocked releases s.mu and hands the view to subscribers. Views that
// lost the race to a newer recompute are dropped.
func (s *Session) publishLocked() {
	s.seq++
	seq := s.seq
	v := cloneView(s.view)
	subs := make([]func(models.View), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.notified {
		return
	}
	s.notified = seq
	for _, fn := range subs {
		fn(v)
	}
}

func cloneView(v models.View) models.View {
	return models.View{
		Visible:   append([]models.MarkerRecord{}, v.Visible...),
		Grouped:   append([]models.GroupedEntry{}, v.Grouped...),
		ShowAll:   v.ShowAll,
		Unmatched: append([]string(nil), v.Unmatched...),
	}
}
