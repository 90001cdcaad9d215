package mapview

import (
	"strconv"

	"github.com/starford/aislemap/internal/feed"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/parser"
)

func markerDoc(id, category string, x, y any) feed.Document {
	return feed.Document{ID: id, Payload: parser.Payload{
		"category": category,
		"color":    "#" + id,
		"location": map[string]any{"x": x, "y": y},
	}}
}

func itemDoc(id, name, category string) feed.Document {
	return feed.Document{ID: id, Payload: parser.Payload{
		"name":     name,
		"category": category,
		"imageUrl": "http://img/" + id + ".png",
	}}
}

func markerIDs(ms []models.MarkerRecord) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func groupSummary(gs []models.GroupedEntry) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Name + "/" + g.Category + "/" + strconv.Itoa(g.Quantity)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
