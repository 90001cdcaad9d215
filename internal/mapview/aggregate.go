package mapview

import (
	"sort"

	"github.com/starford/aislemap/internal/models"
)

// CategorySet is the set of categories accepted for one session.
type CategorySet map[string]struct{}

// NewCategorySet builds a set from categories.
func NewCategorySet(categories ...string) CategorySet {
	set := make(CategorySet, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether category is accepted.
func (c CategorySet) Has(category string) bool {
	_, ok := c[category]
	return ok
}

// List returns the categories in sorted order.
func (c CategorySet) List() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Group collapses records sharing a (name, category) key into one entry
// carrying the first record's fields and the member count as Quantity.
// Entries keep first-seen order and only accepted categories are returned.
func Group(records []models.SelectionRecord, accepted CategorySet) []models.GroupedEntry {
	if len(accepted) == 0 {
		return []models.GroupedEntry{}
	}

	index := make(map[models.GroupKey]int, len(records))
	grouped := make([]models.GroupedEntry, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.Key()]; ok {
			grouped[i].Quantity++
			continue
		}
		first := r
		first.Quantity = 1
		index[r.Key()] = len(grouped)
		grouped = append(grouped, models.GroupedEntry{SelectionRecord: first})
	}

	out := grouped[:0]
	for _, g := range grouped {
		if accepted.Has(g.Category) {
			out = append(out, g)
		}
	}
	return out
}
