package notable

import (
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/internal/model"
	"github.com/Gopher0727/ChatTimeline/internal/render"
)

// Entry is one message displayed in the notable list. The message is shared
// with the main timeline, the content is the list's own.
type Entry struct {
	Message *model.Message
	Content *render.Content
	// Kind is "pin" for pinned messages, "star" otherwise.
	Kind string
	Mine bool
	Info string
}

// Update carries a new notable ordering, and optionally the message which
// entered the list or changed.
type Update struct {
	IDs []int64        `json:"ids"`
	M   *model.Message `json:"m,omitempty"`
}

// Observer is notified of every entry (re)built in the list.
type Observer func(e *Entry)

// List is the side list of pinned and starred messages. Its order is given
// by the caller, never computed here.
type List struct {
	entries   []*Entry
	observers []Observer

	me         int64
	levels     []model.VoteLevel
	dispatcher *render.Dispatcher
	logger     *zap.Logger
}

func NewList(me int64, dispatcher *render.Dispatcher, logger *zap.Logger) *List {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &List{
		me:         me,
		levels:     model.DefaultVoteLevels,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (l *List) Subscribe(o Observer) {
	l.observers = append(l.observers, o)
}

// UpdateSingle replaces the displayed version of m, keeping its position.
// Messages not in the list are ignored.
func (l *List) UpdateSingle(m *model.Message) bool {
	i := slices.IndexFunc(l.entries, func(e *Entry) bool { return e.Message.ID == m.ID })
	if i < 0 {
		return false
	}
	l.entries[i] = l.build(m)
	l.notify(l.entries[i])
	return true
}

// UpdateAll rebuilds the list in upd.IDs order from the displayed messages
// and upd.M. Ids with no known message are skipped.
func (l *List) UpdateAll(upd Update) {
	known := make(map[int64]*model.Message, len(l.entries)+1)
	for _, e := range l.entries {
		known[e.Message.ID] = e.Message
	}
	if upd.M != nil {
		known[upd.M.ID] = upd.M
	}

	entries := make([]*Entry, 0, len(upd.IDs))
	for _, id := range upd.IDs {
		m, ok := known[id]
		if !ok {
			l.logger.Warn("no message in notables", zap.Int64("message_id", id))
			continue
		}
		entries = append(entries, l.build(m))
	}
	l.entries = entries

	for _, e := range l.entries {
		l.notify(e)
	}
}

func (l *List) build(m *model.Message) *Entry {
	e := &Entry{
		Message: m,
		Content: render.NewContent(),
		Kind:    "star",
		Mine:    l.me != 0 && m.Author == l.me,
		Info:    info(m, l.levels),
	}
	if m.Pinned() {
		e.Kind = "pin"
	}
	l.dispatcher.Render(e.Content, m, nil)
	return e
}

func (l *List) notify(e *Entry) {
	for _, o := range l.observers {
		o(e)
	}
}

// info is the line under a notable message: votes, time and author.
func info(m *model.Message, levels []model.VoteLevel) string {
	parts := []string{}
	if votes := model.VotesAbstract(m, levels); votes != "" {
		parts = append(parts, votes)
	}
	parts = append(parts, m.Created.Format(time.DateTime), "by", m.AuthorName)
	return strings.Join(parts, " ")
}

// Entries returns the displayed entries in list order.
func (l *List) Entries() []*Entry { return slices.Clone(l.entries) }

// IDs returns the displayed message ids in list order.
func (l *List) IDs() []int64 {
	ids := make([]int64, len(l.entries))
	for i, e := range l.entries {
		ids[i] = e.Message.ID
	}
	return ids
}
