// Package models defines the record and view types for aislemap.
package models

// Collection names of the change feed.
const (
	CollectionMarkers       = "Markers"
	CollectionSelectedItems = "SelectedItems"
)

// Location is a marker position on the store layout, in layout pixels.
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MarkerRecord is a spatial marker for one product category.
type MarkerRecord struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Color    string   `json:"color"`
	Location Location `json:"location"`
}

// SelectionRecord is one item the shopper has put on their list.
type SelectionRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// GroupKey identifies selection records that collapse into one entry.
type GroupKey struct {
	Name     string
	Category string
}

// Key returns the group key of the record.
func (r SelectionRecord) Key() GroupKey {
	return GroupKey{Name: r.Name, Category: r.Category}
}

// GroupedEntry is the first-seen record of a group with Quantity set to the
// number of records sharing its key.
type GroupedEntry struct {
	SelectionRecord
}

// View is the presentation-ready state published after every recompute.
type View struct {
	Visible   []MarkerRecord `json:"visible"`
	Grouped   []GroupedEntry `json:"grouped"`
	ShowAll   bool           `json:"show_all"`
	Unmatched []string       `json:"unmatched,omitempty"`
}
