package api

import (
	"maps"
	"time"

	"github.com/Gopher0727/ChatTimeline/internal/model"
	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/timeline"
)

// EntryView is one displayed message.
type EntryView struct {
	Key       string             `json:"key"`
	ID        int64              `json:"id,omitempty"`
	Author    int64              `json:"author"`
	HTML      string             `json:"html"`
	Classes   []string           `json:"classes,omitempty"`
	Created   time.Time          `json:"created"`
	Vote      model.Vote         `json:"vote,omitempty"`
	Votes     map[model.Vote]int `json:"votes,omitempty"`
	RepliesTo int64              `json:"replies_to,omitempty"`

	BeforeDisruption bool `json:"before_disruption,omitempty"`
	AfterDisruption  bool `json:"after_disruption,omitempty"`
	ShowDate         bool `json:"show_date,omitempty"`
	Mine             bool `json:"mine,omitempty"`
	Edited           bool `json:"edited,omitempty"`
	HasHistory       bool `json:"has_history,omitempty"`
}

type BatchView struct {
	Author     int64       `json:"author"`
	AuthorName string      `json:"author_name"`
	Bot        bool        `json:"bot,omitempty"`
	Entries    []EntryView `json:"entries"`
}

type MarkerView struct {
	Direction timeline.Direction `json:"direction"`
	TargetID  int64              `json:"target_id"`
}

// ItemView is either a batch or a marker.
type ItemView struct {
	Kind   string      `json:"kind"`
	Batch  *BatchView  `json:"batch,omitempty"`
	Marker *MarkerView `json:"marker,omitempty"`
}

type TimelineView struct {
	Count int        `json:"count"`
	Items []ItemView `json:"items"`
}

type NotableView struct {
	ID      int64    `json:"id"`
	Kind    string   `json:"kind"`
	Mine    bool     `json:"mine,omitempty"`
	Info    string   `json:"info"`
	HTML    string   `json:"html"`
	Classes []string `json:"classes,omitempty"`
}

// MessageView is a displayed message with its edit history, newest first.
type MessageView struct {
	Entry    EntryView        `json:"entry"`
	Versions []*model.Message `json:"versions"`
}

func entryView(e *timeline.Entry) EntryView {
	m := e.Message
	return EntryView{
		Key:              e.Key,
		ID:               m.ID,
		Author:           m.Author,
		HTML:             e.Content.HTML,
		Classes:          e.Content.Classes(),
		Created:          m.Created,
		Vote:             m.Vote,
		Votes:            maps.Clone(m.Votes),
		RepliesTo:        m.RepliesTo,
		BeforeDisruption: e.BeforeDisruption,
		AfterDisruption:  e.AfterDisruption,
		ShowDate:         e.ShowDate,
		Mine:             e.Mine,
		Edited:           e.Edited(),
		HasHistory:       e.HasHistory(),
	}
}

// versionsView copies the edit history of m. Views are encoded after the hub
// loop released them, so they must not share anything with the store.
func versionsView(m *model.Message) []*model.Message {
	versions := m.Versions()
	out := make([]*model.Message, len(versions))
	for i, v := range versions {
		cp := *v
		cp.Previous = nil
		cp.Votes = maps.Clone(v.Votes)
		out[i] = &cp
	}
	return out
}

func timelineView(s *timeline.Store) TimelineView {
	layout := s.Layout()
	v := TimelineView{Count: s.Len(), Items: make([]ItemView, 0, len(layout))}
	for _, it := range layout {
		if it.Marker != nil {
			v.Items = append(v.Items, ItemView{
				Kind:   "marker",
				Marker: &MarkerView{Direction: it.Marker.Direction, TargetID: it.Marker.TargetID},
			})
			continue
		}
		b := &BatchView{
			Author:     it.Batch.Author,
			AuthorName: it.Batch.AuthorName,
			Bot:        it.Batch.Bot,
			Entries:    make([]EntryView, 0, len(it.Batch.Members)),
		}
		for _, e := range it.Batch.Members {
			b.Entries = append(b.Entries, entryView(e))
		}
		v.Items = append(v.Items, ItemView{Kind: "batch", Batch: b})
	}
	return v
}

func notableViews(l *notable.List) []NotableView {
	entries := l.Entries()
	views := make([]NotableView, 0, len(entries))
	for _, e := range entries {
		views = append(views, NotableView{
			ID:      e.Message.ID,
			Kind:    e.Kind,
			Mine:    e.Mine,
			Info:    e.Info,
			HTML:    e.Content.HTML,
			Classes: e.Content.Classes(),
		})
	}
	return views
}
