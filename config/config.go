package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Date display policies for the mdate line of a message.
const (
	DateAlways   = "always"
	DateOnBreaks = "on_breaks"
	DateHover    = "hover"
)

var ErrInvalidDateDisplay = errors.New("invalid timeline.date_display")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxConcurrent caps the requests handled at once, 0 disables the cap.
	MaxConcurrent int             `mapstructure:"max_concurrent"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles POST /api/v1/events. QPS 0 disables it.
type RateLimitConfig struct {
	QPS         float64       `mapstructure:"qps"`
	Burst       int           `mapstructure:"burst"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// TimelineConfig tunes the message timeline engine.
type TimelineConfig struct {
	DisruptionThreshold time.Duration `mapstructure:"disruption_threshold"`
	DateDisplay         string        `mapstructure:"date_display"`
	// Me is the id of the local user, used to mark own messages.
	Me int64 `mapstructure:"me"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Addr returns host:port, or "" when redis ingestion is disabled.
func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type FeedConfig struct {
	WSURL     string `mapstructure:"ws_url"`
	QueueSize int    `mapstructure:"queue_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			Mode:          "release",
			MaxConcurrent: 256,
			RateLimit: RateLimitConfig{
				QPS:         200,
				Burst:       50,
				WaitTimeout: 100 * time.Millisecond,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Timeline: TimelineConfig{
			DisruptionThreshold: time.Hour,
			DateDisplay:         DateOnBreaks,
		},
		Redis: RedisConfig{Port: 6379, Channel: "chat:timeline"},
		Feed:  FeedConfig{QueueSize: 256},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	v.SetDefault("server.rate_limit.qps", d.Server.RateLimit.QPS)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.rate_limit.wait_timeout", d.Server.RateLimit.WaitTimeout)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("timeline.disruption_threshold", d.Timeline.DisruptionThreshold)
	v.SetDefault("timeline.date_display", d.Timeline.DateDisplay)
	v.SetDefault("timeline.me", d.Timeline.Me)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.channel", d.Redis.Channel)
	v.SetDefault("feed.queue_size", d.Feed.QueueSize)
}

// LoadConfig reads the file at path (any format viper understands) on top of
// the defaults. Environment variables prefixed CHATTIMELINE_ override both,
// e.g. CHATTIMELINE_TIMELINE_ME=42.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("chattimeline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Timeline.DateDisplay {
	case DateAlways, DateOnBreaks, DateHover:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDateDisplay, c.Timeline.DateDisplay)
	}
	if c.Timeline.DisruptionThreshold <= 0 {
		return errors.New("timeline.disruption_threshold must be positive")
	}
	if c.Server.RateLimit.QPS < 0 || c.Server.RateLimit.Burst < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	return nil
}
