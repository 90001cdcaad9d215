// Package feed turns collection directories into a push-based change feed of
// full, ordered collection snapshots.
package feed

import (
	"log/slog"

	"github.com/starford/aislemap/internal/checksum"
	"github.com/starford/aislemap/internal/parser"
	"github.com/starford/aislemap/internal/storage"
)

// Document is one live record of a collection.
type Document struct {
	ID      string
	Payload parser.Payload
}

// Snapshot is the full, ordered content of a collection at one point in time.
type Snapshot struct {
	Collection string
	Documents  []Document
	// Checksum digests the raw bytes of every document in order.
	Checksum string
}

// Load reads every document of a collection. Documents that cannot be read
// or decoded are logged and left out of the snapshot.
func Load(store storage.Provider, collection string, logger *slog.Logger) (Snapshot, error) {
	metas, err := store.List(collection)
	if err != nil {
		return Snapshot{}, err
	}

	docs := make([]Document, 0, len(metas))
	entries := make([]checksum.Entry, 0, len(metas))
	for _, m := range metas {
		data, err := store.Read(collection, m.ID)
		if err != nil {
			logger.Warn("feed: read failed",
				slog.String("collection", collection),
				slog.String("id", m.ID),
				slog.String("error", err.Error()))
			continue
		}
		payload, err := parser.Parse(data)
		if err != nil {
			logger.Warn("feed: decode failed",
				slog.String("collection", collection),
				slog.String("id", m.ID),
				slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, Document{ID: m.ID, Payload: payload})
		entries = append(entries, checksum.Entry{Name: m.ID, Data: data})
	}

	return Snapshot{
		Collection: collection,
		Documents:  docs,
		Checksum:   checksum.SumEntries(entries),
	}, nil
}
