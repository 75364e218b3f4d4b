package timeline

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/config"
	"github.com/Gopher0727/ChatTimeline/internal/model"
	"github.com/Gopher0727/ChatTimeline/internal/render"
)

var ErrUnknownMessage = errors.New("message not in timeline")

// Entry is one displayed message with its rendered content.
type Entry struct {
	// Key identifies the entry: the message id, or a local uuid for flakes.
	Key     string
	Message *model.Message
	Content *render.Content
	Batch   *Batch

	BeforeDisruption bool
	AfterDisruption  bool
	ShowDate         bool
	// Mine is set on messages written by the local user.
	Mine bool
}

// Edited reports whether the pen decoration applies.
func (e *Entry) Edited() bool {
	return e.Message.Content != "" && e.Message.Edited()
}

// HasHistory reports whether earlier versions can be shown.
func (e *Entry) HasHistory() bool {
	return e.Message.Previous != nil
}

// InsertResult describes where an inserted message landed.
type InsertResult struct {
	Index   int
	Updated bool
	Entry   *Entry
	Batch   *Batch
}

// Store keeps the ordered messages of the current window.
//
// It is not safe for concurrent use: every call must come from the goroutine
// applying feed events.
type Store struct {
	entries []*Entry
	index   map[int64]int
	batches []*Batch
	markers []Marker

	threshold   time.Duration
	dateDisplay string
	me          int64

	dispatcher *render.Dispatcher
	sizer      render.Sizer
	logger     *zap.Logger
}

func NewStore(cfg *config.TimelineConfig, dispatcher *render.Dispatcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.DisruptionThreshold
	if threshold <= 0 {
		threshold = time.Hour
	}
	return &Store{
		index:       make(map[int64]int),
		threshold:   threshold,
		dateDisplay: cfg.DateDisplay,
		me:          cfg.Me,
		dispatcher:  dispatcher,
		sizer:       render.NopSizer{},
		logger:      logger,
	}
}

// SetSizer registers the collaborator resizing contents changed in place.
func (s *Store) SetSizer(sizer render.Sizer) {
	s.sizer = sizer
}

// Insert adds m to the timeline or, when a message with the same id is
// already there, replaces it. Grouping, boundary markers and disruption flags
// are up to date and the entry is rendered when Insert returns.
func (s *Store) Insert(m *model.Message) InsertResult {
	m.RepliesTo = model.ParseRepliesTo(m.Content)

	if m.ID != 0 {
		if i, ok := s.index[m.ID]; ok {
			return s.update(i, m)
		}
	}

	i := s.insertionIndex(m)
	if i == 0 && m.ID != 0 && m.Vote != model.VoteNone && m.Votes[m.Vote] == 0 {
		// a pin vote may have been removed by somebody else meanwhile
		m.Vote = model.VoteNone
	}

	e := &Entry{
		Key:     entryKey(m),
		Message: m,
		Content: render.NewContent(),
		Mine:    s.me != 0 && m.Author == s.me,
	}
	s.entries = slices.Insert(s.entries, i, e)
	s.reindex()
	batch := s.group(i)
	s.refresh()

	s.dispatcher.Render(e.Content, m, nil)

	s.logger.Debug("message inserted",
		zap.Int64("message_id", m.ID),
		zap.Int("index", i),
		zap.Int("batch_size", len(batch.Members)))
	return InsertResult{Index: i, Entry: e, Batch: batch}
}

// InsertPage inserts the messages of a pagination response. Messages already
// known are updated, so a late response never duplicates entries.
func (s *Store) InsertPage(messages []*model.Message) []InsertResult {
	results := make([]InsertResult, 0, len(messages))
	for _, m := range messages {
		results = append(results, s.Insert(m))
	}
	return results
}

func (s *Store) update(i int, m *model.Message) InsertResult {
	e := s.entries[i]
	old := e.Message

	if m.Vote == model.VoteUnknown {
		m.Vote = old.Vote
	}
	if m.Content != old.Content {
		s.dispatcher.Unrender(e.Content, old)
		e.Content = render.NewContent()
		if !m.Changed.Equal(old.Changed) {
			m.Previous = old
		}
	}
	// same text: the old content is kept with its in-place replacements

	e.Message = m
	e.Mine = s.me != 0 && m.Author == s.me
	s.refresh()

	s.dispatcher.Render(e.Content, m, old)

	s.logger.Debug("message updated",
		zap.Int64("message_id", m.ID),
		zap.Int("index", i),
		zap.Bool("versioned", m.Previous != nil))
	return InsertResult{Index: i, Updated: true, Entry: e, Batch: e.Batch}
}

// insertionIndex scans back from the newest entry for the last one not
// greater than m. 0 means m goes first.
func (s *Store) insertionIndex(m *model.Message) int {
	i := len(s.entries) - 1
	for i >= 0 && greater(s.entries[i].Message, m) {
		i--
	}
	return i + 1
}

func greater(e, m *model.Message) bool {
	if e.ID != 0 && m.ID != 0 && e.ID > m.ID {
		return true
	}
	return e.Created.After(m.Created)
}

func entryKey(m *model.Message) string {
	if m.ID == 0 {
		return uuid.NewString()
	}
	return strconv.FormatInt(m.ID, 10)
}

func (s *Store) reindex() {
	clear(s.index)
	for i, e := range s.entries {
		if e.Message.ID != 0 {
			s.index[e.Message.ID] = i
		}
	}
}

// refresh recomputes boundary markers and disruption flags over the whole
// sequence.
func (s *Store) refresh() {
	s.markers = computeMarkers(s.entries)

	d := DetectDisruptions(s.All(), s.threshold)
	for i, e := range s.entries {
		e.BeforeDisruption = d.Before(i)
		e.AfterDisruption = d.After(i)
		switch s.dateDisplay {
		case config.DateAlways:
			e.ShowDate = true
		case config.DateOnBreaks:
			e.ShowDate = e.BeforeDisruption || e.AfterDisruption
		default:
			e.ShowDate = false
		}
	}
}

// Box substitutes a fragment of the rendered content of a message, then asks
// the sizer to resize it. Failures leave the content unchanged.
func (s *Store) Box(args render.BoxArgs) error {
	i, ok := s.index[args.MessageID]
	if !ok {
		s.logger.Warn("boxing failed: unknown message", zap.Int64("message_id", args.MessageID))
		return fmt.Errorf("box message %d: %w", args.MessageID, ErrUnknownMessage)
	}
	e := s.entries[i]
	if err := s.dispatcher.Box(e.Content, args); err != nil {
		return err
	}
	s.sizer.Resize(args.MessageID, e.Content)
	return nil
}

// Rerender renders every entry again, e.g. after a renderer was registered.
func (s *Store) Rerender() {
	for _, e := range s.entries {
		s.dispatcher.Render(e.Content, e.Message, nil)
	}
}

// All returns the messages in timeline order.
func (s *Store) All() []*model.Message {
	messages := make([]*model.Message, len(s.entries))
	for i, e := range s.entries {
		messages[i] = e.Message
	}
	return messages
}

func (s *Store) Get(id int64) (*model.Message, bool) {
	e, ok := s.Entry(id)
	if !ok {
		return nil, false
	}
	return e.Message, true
}

func (s *Store) Entry(id int64) (*Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.entries[i], true
}

func (s *Store) Entries() []*Entry { return slices.Clone(s.entries) }

func (s *Store) Batches() []*Batch { return slices.Clone(s.batches) }

func (s *Store) Markers() []Marker { return slices.Clone(s.markers) }

func (s *Store) Len() int { return len(s.entries) }
