package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/timeline"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

var (
	ErrHubClosed = errors.New("feed hub closed")
	ErrJobPanic  = errors.New("hub job panicked")
)

// Applier consumes events. Sources deliver to it.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}

type job struct {
	fn func()
	// receives the outcome of fn, buffered so the loop never blocks on it
	done chan error
}

// Hub 串行化所有对时间线的访问
//
// The timeline store and the notable list are not safe for concurrent use:
// every mutation and every read goes through the hub loop.
type Hub struct {
	store    *timeline.Store
	notables *notable.List

	// 任务队列, 由 Run 循环消费
	jobs chan job
	// Run 退出时关闭
	closed chan struct{}

	logger *logger.Logger
}

func NewHub(store *timeline.Store, notables *notable.List, queueSize int, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		store:    store,
		notables: notables,
		jobs:     make(chan job, queueSize),
		closed:   make(chan struct{}),
		logger:   log,
	}
}

// Run drains the job queue until ctx is done. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.closed)
	h.logger.Info("feed hub started")
	for {
		select {
		case j := <-h.jobs:
			h.run(j)
		case <-ctx.Done():
			h.logger.Info("feed hub stopped")
			return
		}
	}
}

func (h *Hub) run(j job) {
	var err error
	defer func() { j.done <- err }()
	// 单个任务 panic 不能让循环退出, 但要报告给调用方
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hub job panic", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	j.fn()
}

// Do runs fn on the hub loop and waits for it to return. A panic in fn is
// returned as ErrJobPanic. If ctx ends first fn may still run later.
func (h *Hub) Do(ctx context.Context, fn func()) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case h.jobs <- j:
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply validates ev and applies it to the timeline or the notable list.
func (h *Hub) Apply(ctx context.Context, ev Event) error {
	if logger.GetTraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, "")
	}
	if err := ev.Validate(); err != nil {
		h.logger.WarnContext(ctx, "event rejected", zap.String("type", string(ev.Type)), zap.Error(err))
		return err
	}

	var err error
	if doErr := h.Do(ctx, func() { err = h.apply(ctx, ev) }); doErr != nil {
		return doErr
	}
	return err
}

func (h *Hub) apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventMessage:
		r := h.store.Insert(ev.Message)
		h.logger.DebugContext(ctx, "message applied",
			zap.Int64("message_id", ev.Message.ID),
			zap.Int("index", r.Index),
			zap.Bool("updated", r.Updated),
		)
	case EventPage:
		h.store.InsertPage(ev.Messages)
		h.logger.DebugContext(ctx, "page applied", zap.Int("count", len(ev.Messages)))
	case EventNotables:
		h.notables.UpdateAll(*ev.Notables)
		h.logger.DebugContext(ctx, "notables applied", zap.Int64s("ids", ev.Notables.IDs))
	case EventNotable:
		if !h.notables.UpdateSingle(ev.Message) {
			h.logger.DebugContext(ctx, "notable not displayed", zap.Int64("message_id", ev.Message.ID))
		}
	case EventBox:
		if err := h.store.Box(*ev.Box); err != nil {
			return fmt.Errorf("failed to box message %d: %w", ev.Box.MessageID, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}

// deliver decodes one raw payload and applies it. Failures are logged and
// the payload dropped, a source never stops on a bad event.
func deliver(ctx context.Context, h Applier, log *logger.Logger, source string, payload []byte) {
	ctx = logger.WithTraceID(ctx, "")
	ev, err := DecodeEvent(payload)
	if err != nil {
		log.WarnContext(ctx, "dropping undecodable payload",
			zap.String("source", source),
			zap.Int("size", len(payload)),
			zap.Error(err),
		)
		return
	}
	if err := h.Apply(ctx, ev); err != nil {
		log.WarnContext(ctx, "failed to apply event",
			zap.String("source", source),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
