package mapview

import "github.com/starford/aislemap/internal/models"

// Visible picks the markers to display. With showAll every marker is
// returned. Otherwise each distinct category of grouped, in order, gets the
// first marker of that category; categories without a marker are left out
// and reported in unmatched.
func Visible(markers []models.MarkerRecord, grouped []models.GroupedEntry, showAll bool) (visible []models.MarkerRecord, unmatched []string) {
	if showAll {
		out := make([]models.MarkerRecord, len(markers))
		copy(out, markers)
		return out, nil
	}

	first := make(map[string]models.MarkerRecord, len(markers))
	for _, m := range markers {
		if _, ok := first[m.Category]; !ok {
			first[m.Category] = m
		}
	}

	seen := make(map[string]struct{}, len(grouped))
	visible = make([]models.MarkerRecord, 0, len(grouped))
	for _, g := range grouped {
		if _, dup := seen[g.Category]; dup {
			continue
		}
		seen[g.Category] = struct{}{}
		m, ok := first[g.Category]
		if !ok {
			unmatched = append(unmatched, g.Category)
			continue
		}
		visible = append(visible, m)
	}
	return visible, unmatched
}
