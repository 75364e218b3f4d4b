package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ChatTimeline/config"
	"github.com/Gopher0727/ChatTimeline/internal/feed"
	"github.com/Gopher0727/ChatTimeline/internal/model"
	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/render"
	"github.com/Gopher0727/ChatTimeline/internal/timeline"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) (*gin.Engine, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := render.NewDispatcher(nil)
	d.RegisterRenderer(d.TextRenderer(), render.PreRender)
	store := timeline.NewStore(&config.TimelineConfig{
		DisruptionThreshold: time.Hour,
		DateDisplay:         config.DateOnBreaks,
		Me:                  1,
	}, d, nil)
	list := notable.NewList(1, d, nil)

	hub := feed.NewHub(store, list, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return NewRouter(NewHandler(hub, store, list, nil), &config.Default().Server, logger.NewNopLogger()), cancel
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func msg(id, author int64, content string, minutes int) *model.Message {
	return &model.Message{
		ID:         id,
		Author:     author,
		AuthorName: "user",
		Content:    content,
		Created:    t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func post(t *testing.T, r http.Handler, ev feed.Event) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, r, http.MethodPost, "/api/v1/events", ev)
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(traceHeader))
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	r, _ := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(traceHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(traceHeader))
}

func TestTimeline(t *testing.T) {
	r, _ := setupRouter(t)

	page := []*model.Message{
		msg(11, 2, "b", 1),
		msg(10, 1, "a <b>", 0),
		msg(12, 2, "c", 2),
	}
	page[1].Prev = 9
	require.Equal(t, http.StatusOK, post(t, r, feed.Event{Type: feed.EventPage, Messages: page}).Code)

	w := do(t, r, http.MethodGet, "/api/v1/timeline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[TimelineView](t, w)

	assert.Equal(t, 3, view.Count)
	require.Len(t, view.Items, 3)

	assert.Equal(t, "marker", view.Items[0].Kind)
	assert.Equal(t, timeline.Older, view.Items[0].Marker.Direction)
	assert.Equal(t, int64(9), view.Items[0].Marker.TargetID)

	first := view.Items[1].Batch
	require.NotNil(t, first)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, "a &lt;b&gt;", first.Entries[0].HTML)
	assert.True(t, first.Entries[0].Mine)

	second := view.Items[2].Batch
	require.NotNil(t, second)
	assert.Equal(t, int64(2), second.Author)
	require.Len(t, second.Entries, 2)
	assert.Equal(t, int64(11), second.Entries[0].ID)
	assert.Equal(t, int64(12), second.Entries[1].ID)
}

func TestGetMessage(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusOK, post(t, r, feed.Event{Type: feed.EventMessage, Message: msg(5, 2, "first", 0)}).Code)

	edited := msg(5, 2, "second", 0)
	edited.Changed = t0.Add(time.Minute)
	require.Equal(t, http.StatusOK, post(t, r, feed.Event{Type: feed.EventMessage, Message: edited}).Code)

	w := do(t, r, http.MethodGet, "/api/v1/messages/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[MessageView](t, w)
	assert.True(t, view.Entry.Edited)
	assert.True(t, view.Entry.HasHistory)
	require.Len(t, view.Versions, 2)
	assert.Equal(t, "second", view.Versions[0].Content)
	assert.Equal(t, "first", view.Versions[1].Content)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/messages/6", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/messages/abc", nil).Code)
}

func TestNotables(t *testing.T) {
	r, _ := setupRouter(t)
	for _, id := range []int64{1, 2, 3} {
		m := msg(id, id, "pinned", int(id))
		m.Votes = map[model.Vote]int{model.VotePin: 1}
		ids := []int64{id}
		if id == 2 {
			ids = []int64{2, 1}
		}
		if id == 3 {
			ids = []int64{3, 1, 2}
		}
		w := post(t, r, feed.Event{Type: feed.EventNotables, Notables: &notable.Update{IDs: ids, M: m}})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, r, http.MethodGet, "/api/v1/notables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Notables []NotableView `json:"notables"`
	}](t, w)

	require.Len(t, body.Notables, 3)
	assert.Equal(t, int64(3), body.Notables[0].ID)
	assert.Equal(t, int64(1), body.Notables[1].ID)
	assert.Equal(t, int64(2), body.Notables[2].ID)
	assert.True(t, body.Notables[1].Mine)
	assert.Equal(t, "pin", body.Notables[0].Kind)
}

func TestPostEventErrors(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusOK, post(t, r, feed.Event{Type: feed.EventMessage, Message: msg(1, 1, "roll 2d6", 0)}).Code)

	tests := []struct {
		name string
		ev   feed.Event
		want int
	}{
		{"unknown type", feed.Event{Type: "typing"}, http.StatusBadRequest},
		{"missing payload", feed.Event{Type: feed.EventMessage}, http.StatusBadRequest},
		{"page with null message", feed.Event{Type: feed.EventPage, Messages: []*model.Message{msg(7, 1, "x", 1), nil}}, http.StatusBadRequest},
		{"box unknown message", feed.Event{Type: feed.EventBox, Box: &render.BoxArgs{MessageID: 2, From: "2d6", To: "7"}}, http.StatusNotFound},
		{"box unknown fragment", feed.Event{Type: feed.EventBox, Box: &render.BoxArgs{MessageID: 1, From: "3d6", To: "7"}}, http.StatusUnprocessableEntity},
		{"box", feed.Event{Type: feed.EventBox, Box: &render.BoxArgs{MessageID: 1, From: "2d6", To: "7"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(t, r, tt.ev).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHubClosed(t *testing.T) {
	r, cancel := setupRouter(t)
	cancel()
	assert.Eventually(t, func() bool {
		return do(t, r, http.MethodGet, "/api/v1/timeline", nil).Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)
}

// Reads are encoded while the hub keeps mutating the same messages, which
// clears satisfied pagination pointers in place. Run with -race.
func TestGetMessageWhileEventsApply(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusOK, post(t, r, feed.Event{Type: feed.EventMessage, Message: msg(2, 2, "v0", 0)}).Code)

	const rounds = 20
	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range rounds {
			gap := int64(1000 + i)
			edited := msg(2, 2, fmt.Sprintf("v%d", i+1), 0)
			edited.Changed = t0.Add(time.Duration(i+1) * time.Second)
			edited.Prev = gap
			edited.Votes = map[model.Vote]int{model.VoteUp: i}
			post(t, r, feed.Event{Type: feed.EventMessage, Message: edited})
			post(t, r, feed.Event{Type: feed.EventMessage, Message: msg(gap, 3, "gap", -1)})
		}
	})
	wg.Go(func() {
		for range rounds * 2 {
			w := do(t, r, http.MethodGet, "/api/v1/messages/2", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
	wg.Wait()

	view := decode[MessageView](t, do(t, r, http.MethodGet, "/api/v1/messages/2", nil))
	require.Len(t, view.Versions, rounds+1)
	assert.Equal(t, fmt.Sprintf("v%d", rounds), view.Versions[0].Content)
	assert.Zero(t, view.Versions[0].Prev)
}
