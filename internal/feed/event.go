package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Gopher0727/ChatTimeline/internal/model"
	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/render"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrInvalidEvent = errors.New("event payload missing")
)

type EventType string

const (
	// EventMessage is a single new or changed message.
	EventMessage EventType = "message"
	// EventPage is a batch of messages, usually an answer to a pagination request.
	EventPage EventType = "page"
	// EventNotables carries the new ordering of the notable list.
	EventNotables EventType = "notables"
	// EventNotable is a changed message which may be displayed in the notable list.
	EventNotable EventType = "notable"
	// EventBox replaces a fragment of a displayed message.
	EventBox EventType = "box"
)

// Event is what sources deliver to the hub.
type Event struct {
	Type     EventType        `json:"type"`
	Message  *model.Message   `json:"message,omitempty"`
	Messages []*model.Message `json:"messages,omitempty"`
	Notables *notable.Update  `json:"notables,omitempty"`
	Box      *render.BoxArgs  `json:"box,omitempty"`
}

// Validate checks that the payload expected by the event type is present.
func (e Event) Validate() error {
	var ok bool
	switch e.Type {
	case EventMessage, EventNotable:
		ok = e.Message != nil
	case EventPage:
		ok = e.Messages != nil && !slices.Contains(e.Messages, nil)
	case EventNotables:
		ok = e.Notables != nil
	case EventBox:
		ok = e.Box != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, e.Type)
	}
	return nil
}

// DecodeEvent parses and validates one JSON encoded event.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
