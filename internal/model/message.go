package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Vote is the vote the local user cast on a message.
// The empty value means no vote, VoteUnknown means the sender doesn't know
// and the vote already held for the message must be kept.
type Vote string

const (
	VoteNone    Vote = ""
	VoteUnknown Vote = "?"
	VotePin     Vote = "pin"
	VoteStar    Vote = "star"
	VoteUp      Vote = "up"
	VoteDown    Vote = "down"
)

// VoteLevel is one kind of vote, with the glyph used in summaries.
type VoteLevel struct {
	Key  Vote   `json:"key"`
	Icon string `json:"icon"`
}

// DefaultVoteLevels lists the vote kinds in display order.
var DefaultVoteLevels = []VoteLevel{
	{Key: VotePin, Icon: "📌"},
	{Key: VoteStar, Icon: "★"},
	{Key: VoteUp, Icon: "▲"},
	{Key: VoteDown, Icon: "▼"},
}

// Message 消息模型
type Message struct {
	// ID is 0 for flake messages, which are never stored in history.
	ID         int64  `json:"id,omitempty"`
	Author     int64  `json:"author"`
	AuthorName string `json:"authorname"`
	Bot        bool   `json:"bot,omitempty"`
	Content    string `json:"content,omitempty"`

	Created time.Time `json:"created"`
	Changed time.Time `json:"changed,omitzero"`

	Vote  Vote         `json:"vote,omitempty"`
	Votes map[Vote]int `json:"votes,omitempty"`

	// Prev and Next are the ids of the chronologically adjacent messages,
	// which may not be loaded yet. They are reset to 0 once loaded.
	Prev int64 `json:"prev,omitempty"`
	Next int64 `json:"next,omitempty"`

	// Previous is the version this message replaced, when an edit changed it.
	Previous *Message `json:"-"`

	RepliesTo int64 `json:"-"`
}

func (m *Message) IsFlake() bool { return m.ID == 0 }

func (m *Message) Edited() bool { return !m.Changed.IsZero() }

func (m *Message) Pinned() bool { return m.Votes[VotePin] > 0 }

func (m *Message) Starred() bool { return m.Votes[VoteStar] > 0 }

// Count returns the counter of the given vote level.
func (m *Message) Count(v Vote) int { return m.Votes[v] }

// Versions returns the edit history, newest first, starting with m itself.
func (m *Message) Versions() []*Message {
	var versions []*Message
	for v := m; v != nil; v = v.Previous {
		versions = append(versions, v)
	}
	return versions
}

// Less reports whether a sorts before b in a timeline: by id when both
// carry one, by creation time otherwise.
func Less(a, b *Message) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID < b.ID
	}
	return a.Created.Before(b.Created)
}

// 只考虑开头的一个 @name#id 引用
var replyRegexp = regexp.MustCompile(`^\s*@\w[\w\-]{2,}#(\d+)`)

// ParseRepliesTo returns the id of the message the content answers to, or 0.
func ParseRepliesTo(content string) int64 {
	matches := replyRegexp.FindStringSubmatch(content)
	if matches == nil {
		return 0
	}
	id, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// VotesAbstract summarizes the non-zero vote counters, e.g. "2 📌 1 ★".
func VotesAbstract(m *Message, levels []VoteLevel) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		if n := m.Votes[l.Key]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, l.Icon))
		}
	}
	return strings.Join(parts, " ")
}
