// Package testutil provides shared test helpers for document stores, journals
// and seeded map sessions.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/journal"
	"github.com/starford/aislemap/internal/mapview"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary document store.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteDoc writes a YAML document or fails the test.
func WriteDoc(t *testing.T, store storage.Provider, collection, id, yamlBody string) {
	t.Helper()
	if err := store.Write(collection, id, []byte(yamlBody)); err != nil {
		t.Fatalf("write %s/%s: %v", collection, id, err)
	}
}

// Sync loads both collections from store and applies them to session, the
// way the change feed would.
func Sync(t *testing.T, store storage.Provider, session *mapview.Session) {
	t.Helper()
	for _, c := range []string{models.CollectionMarkers, models.CollectionSelectedItems} {
		snap, err := feed.Load(store, c, Logger())
		if err != nil {
			t.Fatalf("load %s: %v", c, err)
		}
		if c == models.CollectionMarkers {
			session.Markers().Apply(snap.Documents)
		} else {
			session.Selection().Apply(snap.Documents)
		}
	}
}

// SeedStore writes a small store layout: two Dairy markers, one Bakery
// marker, two identical Milk items, one Bread item.
func SeedStore(t *testing.T, store storage.Provider) {
	t.Helper()
	WriteDoc(t, store, models.CollectionMarkers, "m-dairy-1", "category: Dairy\ncolor: blue\nlocation:\n  x: 10\n  y: 20\n")
	WriteDoc(t, store, models.CollectionMarkers, "m-dairy-2", "category: Dairy\ncolor: navy\nlocation:\n  x: 90\n  y: 20\n")
	WriteDoc(t, store, models.CollectionMarkers, "m-bakery", "category: Bakery\ncolor: brown\nlocation:\n  x: \"40\"\n  y: oops\n")
	WriteDoc(t, store, models.CollectionSelectedItems, "item-1", "name: Milk\ncategory: Dairy\nimageUrl: http://img/milk.png\n")
	WriteDoc(t, store, models.CollectionSelectedItems, "item-2", "name: Milk\ncategory: Dairy\n")
	WriteDoc(t, store, models.CollectionSelectedItems, "item-3", "name: Bread\ncategory: Bakery\n")
}
