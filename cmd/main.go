package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/config"
	"github.com/Gopher0727/ChatTimeline/internal/api"
	"github.com/Gopher0727/ChatTimeline/internal/feed"
	"github.com/Gopher0727/ChatTimeline/internal/notable"
	"github.com/Gopher0727/ChatTimeline/internal/render"
	"github.com/Gopher0727/ChatTimeline/internal/timeline"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "chattimeline",
		Short:        "Maintain a chat timeline fed from redis or a websocket and serve it over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (defaults and CHATTIMELINE_* env when empty)")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("配置初始化失败: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 渲染链: 纯文本渲染兜底, 其他渲染器在此之前注册
	dispatcher := render.NewDispatcher(log.Named("render"))
	dispatcher.RegisterRenderer(dispatcher.TextRenderer(), render.PreRender)

	store := timeline.NewStore(&cfg.Timeline, dispatcher, log.Named("timeline"))
	notables := notable.NewList(cfg.Timeline.Me, dispatcher, log.Named("notable"))
	notables.Subscribe(func(e *notable.Entry) {
		log.Debug("notable rendered", zap.Int64("message_id", e.Message.ID), zap.String("kind", e.Kind))
	})

	hub := feed.NewHub(store, notables, cfg.Feed.QueueSize, log.WithFields(zap.String("component", "feed")))

	var wg sync.WaitGroup
	wg.Go(func() { hub.Run(ctx) })

	// 事件来源: Redis 频道和/或 WebSocket 上游
	if cfg.Redis.Addr() != "" {
		client, err := feed.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("redis 初始化失败: %w", err)
		}
		defer client.Close()

		source := feed.NewRedisSource(client, cfg.Redis.Channel, hub, log)
		wg.Go(func() {
			if err := source.Run(ctx); err != nil {
				log.Error("redis source stopped", zap.Error(err))
			}
		})
	}
	if cfg.Feed.WSURL != "" {
		source := feed.NewWSSource(cfg.Feed.WSURL, hub, log)
		wg.Go(func() {
			if err := source.Run(ctx); err != nil {
				log.Error("websocket source stopped", zap.Error(err))
			}
		})
	}

	gin.SetMode(cfg.Server.Mode)
	handler := api.NewHandler(hub, store, notables, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, &cfg.Server, log),
	}

	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
	})

	log.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
	err = srv.ListenAndServe()
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("启动服务器失败: %w", err)
	}
	log.Info("服务器已停止")
	return nil
}
