package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

const (
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20 // 一页历史消息可能较大
)

// WSSource reads JSON encoded events from a websocket server.
type WSSource struct {
	url    string
	dialer *websocket.Dialer
	hub    Applier
	logger *logger.Logger
}

func NewWSSource(url string, hub Applier, log *logger.Logger) *WSSource {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WSSource{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		hub:    hub,
		logger: log.WithFields(zap.String("url", url)),
	}
}

// Run connects and delivers events until ctx is done or the server closes
// the connection. A normal close returns nil.
func (s *WSSource) Run(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	s.logger.Info("websocket source connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// unblocks ReadMessage
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("websocket source closed")
				return nil
			}
			return fmt.Errorf("failed to read from %s: %w", s.url, err)
		}
		if msgType != websocket.TextMessage {
			s.logger.Debug("ignoring non-text frame", zap.Int("frame_type", msgType))
			continue
		}
		deliver(ctx, s.hub, s.logger, "websocket", payload)
	}
}
