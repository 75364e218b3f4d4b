package timeline

import (
	"slices"

	"github.com/Gopher0727/ChatTimeline/internal/model"
)

// Batch is a maximal contiguous run of entries by one author, with no
// pagination gap inside.
type Batch struct {
	Author     int64
	AuthorName string
	Bot        bool
	Members    []*Entry
}

func newBatch(e *Entry) *Batch {
	return &Batch{
		Author:     e.Message.Author,
		AuthorName: e.Message.AuthorName,
		Bot:        e.Message.Bot,
		Members:    []*Entry{e},
	}
}

func (b *Batch) First() *Entry { return b.Members[0] }

func (b *Batch) Last() *Entry { return b.Members[len(b.Members)-1] }

func (b *Batch) insertAfter(anchor, e *Entry) {
	i := slices.Index(b.Members, anchor)
	b.Members = slices.Insert(b.Members, i+1, e)
	e.Batch = b
}

func (b *Batch) insertBefore(anchor, e *Entry) {
	i := slices.Index(b.Members, anchor)
	b.Members = slices.Insert(b.Members, i, e)
	e.Batch = b
}

// splitAt moves the members from anchor on into a new batch and returns it.
func (b *Batch) splitAt(anchor *Entry) *Batch {
	i := slices.Index(b.Members, anchor)
	tail := &Batch{
		Author:     b.Author,
		AuthorName: b.AuthorName,
		Bot:        b.Bot,
		Members:    slices.Clone(b.Members[i:]),
	}
	b.Members = slices.Clip(b.Members[:i])
	for _, e := range tail.Members {
		e.Batch = tail
	}
	return tail
}

// joinsAfter reports whether m, placed right after prev, extends prev's batch.
// Messages carrying a pagination pointer come from a page fetch and never
// fuse with a neighbouring run, nor does anything fuse across a known gap.
func joinsAfter(prev *Entry, m *model.Message) bool {
	return prev != nil &&
		prev.Batch.Author == m.Author &&
		isFresh(m) &&
		prev.Batch.Last().Message.Next == 0
}

// joinsBefore is the mirror of joinsAfter for the batch following m.
func joinsBefore(next *Entry, m *model.Message) bool {
	return next != nil &&
		next.Batch.Author == m.Author &&
		isFresh(m) &&
		next.Batch.First().Message.Prev == 0
}

func isFresh(m *model.Message) bool {
	return m.Prev == 0 && m.Next == 0
}

// group places the entry just inserted at index i into a batch and returns it.
func (s *Store) group(i int) *Batch {
	e := s.entries[i]
	var prev, next *Entry
	if i > 0 {
		prev = s.entries[i-1]
	}
	if i+1 < len(s.entries) {
		next = s.entries[i+1]
	}

	switch {
	case joinsAfter(prev, e.Message):
		prev.Batch.insertAfter(prev, e)
	case joinsBefore(next, e.Message):
		next.Batch.insertBefore(next, e)
	default:
		b := newBatch(e)
		e.Batch = b
		if prev == nil {
			s.batches = slices.Insert(s.batches, 0, b)
			break
		}
		at := slices.Index(s.batches, prev.Batch) + 1
		if next != nil && next.Batch == prev.Batch {
			// inserted inside a run it can't join: cut the run around it
			s.batches = slices.Insert(s.batches, at, b, prev.Batch.splitAt(next))
		} else {
			s.batches = slices.Insert(s.batches, at, b)
		}
	}
	return e.Batch
}
