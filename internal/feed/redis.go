package feed

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/config"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

// NewRedisClient connects to the configured redis server and checks it answers.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisSource 订阅 Redis 频道, 每条消息是一个 JSON 编码的 Event
type RedisSource struct {
	client  *redis.Client
	channel string
	hub     Applier
	logger  *logger.Logger
}

func NewRedisSource(client *redis.Client, channel string, hub Applier, log *logger.Logger) *RedisSource {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisSource{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  log.WithFields(zap.String("channel", channel)),
	}
}

// Run subscribes and delivers events until ctx is done or the subscription closes.
func (s *RedisSource) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// 等待订阅确认, 之后发布的消息不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("redis source subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				s.logger.Info("redis subscription closed")
				return nil
			}
			deliver(ctx, s.hub, s.logger, "redis", []byte(msg.Payload))
		}
	}
}

// Publish encodes ev and publishes it on channel.
func Publish(ctx context.Context, client *redis.Client, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
