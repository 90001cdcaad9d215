package mapview

import (
	"sync"

	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/models"
)

type hideState int

const (
	// hidePending hides a record while its external delete is in flight.
	hidePending hideState = iota
	// hideSettled hides a deleted record for at most one more snapshot that
	// still carries it unchanged.
	hideSettled
)

type hideEntry struct {
	state hideState
	rec   models.SelectionRecord
	grace bool
}

// SelectionStore holds the latest selection snapshot in feed order, minus
// records hidden by optimistic removals.
type SelectionStore struct {
	mu      sync.RWMutex
	records []models.SelectionRecord
	hidden  map[string]*hideEntry
	changed listeners
}

// NewSelectionStore returns an empty store.
func NewSelectionStore() *SelectionStore {
	return &SelectionStore{hidden: make(map[string]*hideEntry)}
}

// DecodeSelection maps a feed document onto a SelectionRecord with
// Quantity 1.
func DecodeSelection(doc feed.Document) models.SelectionRecord {
	return models.SelectionRecord{
		ID:       doc.ID,
		Name:     doc.Payload.String("name"),
		Category: doc.Payload.String("category"),
		Quantity: 1,
		ImageURL: doc.Payload.String("imageUrl"),
	}
}

// Apply replaces the store contents with snapshot and notifies dependents.
// Records with a pending removal stay hidden. A committed removal stays
// hidden through one stale snapshot at most: it shows again as soon as a
// snapshot carries different content for the id, or carries it twice.
func (s *SelectionStore) Apply(snapshot []feed.Document) {
	records := make([]models.SelectionRecord, len(snapshot))
	live := make(map[string]models.SelectionRecord, len(snapshot))
	for i, doc := range snapshot {
		records[i] = DecodeSelection(doc)
		live[doc.ID] = records[i]
	}

	s.mu.Lock()
	s.records = records
	for id, h := range s.hidden {
		if h.state != hideSettled {
			continue
		}
		rec, ok := live[id]
		if !ok || rec != h.rec || !h.grace {
			delete(s.hidden, id)
			continue
		}
		h.grace = false
	}
	s.mu.Unlock()

	s.changed.fire()
}

// Snapshot returns the visible records in feed order.
func (s *SelectionStore) Snapshot() []models.SelectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SelectionRecord, 0, len(s.records))
	for _, r := range s.records {
		if _, hidden := s.hidden[r.ID]; hidden {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Remove hides the record with id and returns the token that resolves the
// removal. ok is false when no visible record has that id.
func (s *SelectionStore) Remove(id string) (hold *Hold, ok bool) {
	s.mu.Lock()
	if _, hidden := s.hidden[id]; hidden {
		s.mu.Unlock()
		return nil, false
	}
	if _, found := s.findLocked(id); !found {
		s.mu.Unlock()
		return nil, false
	}
	s.hidden[id] = &hideEntry{state: hidePending}
	s.mu.Unlock()

	s.changed.fire()
	return &Hold{store: s, id: id}, true
}

// OnChange registers fn to run after every change. The returned func
// removes it.
func (s *SelectionStore) OnChange(fn func()) func() {
	return s.changed.add(fn)
}

func (s *SelectionStore) findLocked(id string) (models.SelectionRecord, bool) {
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.SelectionRecord{}, false
}

// Hold is the token of one optimistic removal. Exactly one of Commit or
// Restore takes effect.
type Hold struct {
	store *SelectionStore
	id    string
	once  sync.Once
}

// ID returns the id of the held record.
func (h *Hold) ID() string { return h.id }

// Commit keeps the record hidden while the feed catches up with the
// delete. The current record is the one the delete removed; a later
// snapshot with other content for the id is a new record and shows.
func (h *Hold) Commit() {
	h.once.Do(func() {
		s := h.store
		s.mu.Lock()
		if rec, ok := s.findLocked(h.id); ok {
			s.hidden[h.id] = &hideEntry{state: hideSettled, rec: rec, grace: true}
		} else {
			delete(s.hidden, h.id)
		}
		s.mu.Unlock()
	})
}

// Restore makes the record visible again at its feed position.
func (h *Hold) Restore() {
	h.once.Do(func() {
		s := h.store
		s.mu.Lock()
		delete(s.hidden, h.id)
		s.mu.Unlock()
		s.changed.fire()
	})
}
