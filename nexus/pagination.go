package nexus

import "sort"

// SortOrder selects the order and marker semantics for a paginated
// list. Default is SortNameAscending.
type SortOrder int

const (
	SortNameAscending SortOrder = iota
	SortNameDescending
	SortIDAscending
	SortIDDescending
)

// PageParams controls a single page of a list operation. Marker is an
// inclusive lower (ascending orders) or upper (descending orders)
// bound on the sort key; an empty Marker means "start from the
// beginning". Limit caps the number of returned items; 0 means
// unlimited.
type PageParams struct {
	Marker string
	Limit  int
	Sort   SortOrder
}

// paginate sorts items by the key params.Sort selects, applies the
// marker, and caps the result at limit. nameKey and idKey must return
// an item's name and id respectively.
func paginate[T any](items []T, params PageParams, nameKey, idKey func(T) string) []T {
	var keyOf func(T) string
	var ascending bool

	switch params.Sort {
	case SortNameDescending:
		keyOf, ascending = nameKey, false
	case SortIDAscending:
		keyOf, ascending = idKey, true
	case SortIDDescending:
		keyOf, ascending = idKey, false
	default:
		keyOf, ascending = nameKey, true
	}

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if ascending {
			return keyOf(sorted[i]) < keyOf(sorted[j])
		}
		return keyOf(sorted[i]) > keyOf(sorted[j])
	})

	if params.Marker != "" {
		filtered := sorted[:0:0]
		for _, item := range sorted {
			k := keyOf(item)
			if ascending && k >= params.Marker {
				filtered = append(filtered, item)
			} else if !ascending && k <= params.Marker {
				filtered = append(filtered, item)
			}
		}
		sorted = filtered
	}

	if params.Limit > 0 && len(sorted) > params.Limit {
		sorted = sorted[:params.Limit]
	}

	return sorted
}
