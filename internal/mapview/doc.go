// Package mapview keeps the store-map views consistent with the change feed.
//
// MarkerStore and SelectionStore own record identity and are replaced
// wholesale by every feed snapshot. Group and Visible are pure functions
// recomputed by a Session whenever an upstream store or the show-all flag
// changes. Remover applies optimistic removals to the SelectionStore and
// rolls them back when the external delete fails or times out.
package mapview
