package timeline

// Item is one element of the laid out timeline: a batch or a marker.
type Item struct {
	Batch  *Batch
	Marker *Marker
}

// Layout returns the batches in order, each surrounded by its boundary
// markers: older ones before it, newer ones after it.
func (s *Store) Layout() []Item {
	before := make(map[*Batch][]Marker)
	after := make(map[*Batch][]Marker)
	for _, mk := range s.markers {
		if mk.Direction == Older {
			before[mk.Batch] = append(before[mk.Batch], mk)
		} else {
			after[mk.Batch] = append(after[mk.Batch], mk)
		}
	}

	items := make([]Item, 0, len(s.batches)+len(s.markers))
	for _, b := range s.batches {
		for _, mk := range before[b] {
			items = append(items, Item{Marker: &mk})
		}
		items = append(items, Item{Batch: b})
		for _, mk := range after[b] {
			items = append(items, Item{Marker: &mk})
		}
	}
	return items
}
