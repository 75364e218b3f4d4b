package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/internal/feed"
	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/render"
	"github.com/Gopher0727/ChatTimeline/internal/timeline"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

// Engine serializes access to the timeline. feed.Hub implements it.
type Engine interface {
	feed.Applier
	Do(ctx context.Context, fn func()) error
}

type Handler struct {
	engine   Engine
	store    *timeline.Store
	notables *notable.List
	logger   *logger.Logger
}

// NewHandler serves store and notables. Every access goes through engine.
func NewHandler(engine Engine, store *timeline.Store, notables *notable.List, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{
		engine:   engine,
		store:    store,
		notables: notables,
		logger:   log,
	}
}

// GetTimeline returns the laid out timeline: batches and boundary markers.
func (h *Handler) GetTimeline(c *gin.Context) {
	var view TimelineView
	if err := h.engine.Do(c.Request.Context(), func() { view = timelineView(h.store) }); err != nil {
		h.engineError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetNotables returns the notable list in display order.
func (h *Handler) GetNotables(c *gin.Context) {
	var views []NotableView
	if err := h.engine.Do(c.Request.Context(), func() { views = notableViews(h.notables) }); err != nil {
		h.engineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notables": views})
}

// GetMessage returns one displayed message with its edit history.
func (h *Handler) GetMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var (
		view  MessageView
		found bool
	)
	err = h.engine.Do(c.Request.Context(), func() {
		e, ok := h.store.Entry(id)
		if !ok {
			return
		}
		found = true
		view = MessageView{Entry: entryView(e), Versions: versionsView(e.Message)}
	})
	if err != nil {
		h.engineError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": timeline.ErrUnknownMessage.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// PostEvent applies one event, as a feed source would.
func (h *Handler) PostEvent(c *gin.Context) {
	var ev feed.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.engine.Apply(c.Request.Context(), ev)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "applied", "type": ev.Type})
	case errors.Is(err, feed.ErrUnknownEvent), errors.Is(err, feed.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, timeline.ErrUnknownMessage):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, render.ErrFragmentNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.engineError(c, err)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) engineError(c *gin.Context, err error) {
	h.logger.ErrorContext(c.Request.Context(), "timeline unavailable", zap.Error(err))
	if errors.Is(err, feed.ErrHubClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "timeline unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
