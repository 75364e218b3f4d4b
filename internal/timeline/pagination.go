package timeline

// Direction tells which way a boundary marker loads.
type Direction string

const (
	Older Direction = "older"
	Newer Direction = "newer"
)

// Marker stands for an adjacent message that exists but isn't loaded.
// Older markers sit right before Batch, newer ones right after it.
type Marker struct {
	Direction Direction
	TargetID  int64
	Batch     *Batch
}

// computeMarkers recomputes every boundary marker from scratch. Pointers to
// messages already present are satisfied and reset to 0.
func computeMarkers(entries []*Entry) []Marker {
	present := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if e.Message.ID != 0 {
			present[e.Message.ID] = struct{}{}
		}
	}

	var markers []Marker
	seen := make(map[Marker]struct{})
	add := func(mk Marker) {
		if _, ok := seen[mk]; ok {
			return
		}
		seen[mk] = struct{}{}
		markers = append(markers, mk)
	}

	for _, e := range entries {
		m := e.Message
		if m.Prev != 0 {
			if _, ok := present[m.Prev]; ok {
				m.Prev = 0
			} else {
				add(Marker{Direction: Older, TargetID: m.Prev, Batch: e.Batch})
			}
		}
		if m.Next != 0 {
			if _, ok := present[m.Next]; ok {
				m.Next = 0
			} else {
				add(Marker{Direction: Newer, TargetID: m.Next, Batch: e.Batch})
			}
		}
	}
	return markers
}
