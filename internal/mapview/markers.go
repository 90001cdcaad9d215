package mapview

import (
	"sync"

	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/parser"
)

// MarkerStore holds the latest marker snapshot in feed order.
type MarkerStore struct {
	mu      sync.RWMutex
	records []models.MarkerRecord
	changed listeners
}

// NewMarkerStore returns an empty store.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{}
}

// DecodeMarker maps a feed document onto a MarkerRecord. Missing or
// malformed coordinates become 0.
func DecodeMarker(doc feed.Document) models.MarkerRecord {
	loc := doc.Payload.Object("location")
	return models.MarkerRecord{
		ID:       doc.ID,
		Category: doc.Payload.String("category"),
		Color:    doc.Payload.String("color"),
		Location: models.Location{
			X: parser.Coordinate(loc["x"]),
			Y: parser.Coordinate(loc["y"]),
		},
	}
}

// Apply replaces the store contents with snapshot and notifies dependents.
func (s *MarkerStore) Apply(snapshot []feed.Document) {
	records := make([]models.MarkerRecord, len(snapshot))
	for i, doc := range snapshot {
		records[i] = DecodeMarker(doc)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.changed.fire()
}

// Snapshot returns a copy of the current markers in feed order.
func (s *MarkerStore) Snapshot() []models.MarkerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MarkerRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the marker with the given id.
func (s *MarkerStore) Get(id string) (models.MarkerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.MarkerRecord{}, false
}

// OnChange registers fn to run after every change. The returned func
// removes it.
func (s *MarkerStore) OnChange(fn func()) func() {
	return s.changed.add(fn)
}
