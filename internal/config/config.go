// Package config loads arbor's settings from the config file, ARBOR_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/drag"
	"mycelica/arbor/internal/persist"
	"mycelica/arbor/internal/viewport"
)

// EnvPrefix prefixes every environment override, e.g. ARBOR_USER_ID.
const EnvPrefix = "ARBOR"

// Config is the resolved configuration.
type Config struct {
	DBPath      string `mapstructure:"db_path"`
	SessionDir  string `mapstructure:"session_dir"`
	UserID      string `mapstructure:"user_id"`
	DisplayName string `mapstructure:"display_name"`
	LogLevel    string `mapstructure:"log_level"`

	SaveDebounce   time.Duration `mapstructure:"save_debounce"`
	MirrorDebounce time.Duration `mapstructure:"mirror_debounce"`
	SavedClear     time.Duration `mapstructure:"saved_clear"`
	ErrorClear     time.Duration `mapstructure:"error_clear"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	RosterPoll     time.Duration `mapstructure:"roster_poll"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`

	SnapThreshold  float64       `mapstructure:"snap_threshold"`
	ClickThreshold float64       `mapstructure:"click_threshold"`
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	MinZoom        float64       `mapstructure:"min_zoom"`
	MaxZoom        float64       `mapstructure:"max_zoom"`
	CanvasWidth    float64       `mapstructure:"canvas_width"`
	CanvasHeight   float64       `mapstructure:"canvas_height"`

	ServerAddr string `mapstructure:"server_addr"`
	RemoteURL  string `mapstructure:"remote_url"`
}

// Dir returns the directory holding config.yaml and the default session store.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "arbor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".arbor")
	}
	return filepath.Join(home, ".config", "arbor")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	v.SetDefault("db_path", "")
	v.SetDefault("session_dir", filepath.Join(Dir(), "session"))
	v.SetDefault("user_id", user)
	v.SetDefault("display_name", user)
	v.SetDefault("log_level", "warn")

	v.SetDefault("save_debounce", 500*time.Millisecond)
	v.SetDefault("mirror_debounce", 16*time.Millisecond)
	v.SetDefault("saved_clear", 2*time.Second)
	v.SetDefault("error_clear", 5*time.Second)
	v.SetDefault("heartbeat", 30*time.Second)
	v.SetDefault("roster_poll", 5*time.Second)
	v.SetDefault("call_timeout", 10*time.Second)

	v.SetDefault("snap_threshold", drag.DefaultSnapThreshold)
	v.SetDefault("click_threshold", drag.DefaultClickThreshold)
	v.SetDefault("frame_interval", drag.DefaultFrameInterval)
	v.SetDefault("min_zoom", viewport.MinZoom)
	v.SetDefault("max_zoom", viewport.MaxZoom)
	v.SetDefault("canvas_width", 1280.0)
	v.SetDefault("canvas_height", 800.0)

	v.SetDefault("server_addr", "127.0.0.1:7420")
	v.SetDefault("remote_url", "")
}

// New returns a viper instance with defaults, env binding and, when found,
// the config file applied. cfgFile overrides the default location.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load resolves the configuration. See New.
func Load(cfgFile string) (*Config, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes v into a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("min_zoom %.2f exceeds max_zoom %.2f", cfg.MinZoom, cfg.MaxZoom)
	}
	return &cfg, nil
}

// NewLogger builds the process logger at the configured level, writing to w.
// An unknown level falls back to warn.
func (c *Config) NewLogger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

// GatewayOptions returns persistence timings with logger attached.
func (c *Config) GatewayOptions(logger logrus.FieldLogger) persist.Options {
	opts := persist.DefaultOptions()
	opts.SaveDebounce = c.SaveDebounce
	opts.MirrorDebounce = c.MirrorDebounce
	opts.SavedClear = c.SavedClear
	opts.ErrorClear = c.ErrorClear
	opts.Heartbeat = c.Heartbeat
	opts.RosterPoll = c.RosterPoll
	opts.CallTimeout = c.CallTimeout
	opts.Logger = logger
	return opts
}

// DragOptions returns the drag thresholds.
func (c *Config) DragOptions() *drag.Options {
	return &drag.Options{
		SnapThreshold:  c.SnapThreshold,
		ClickThreshold: c.ClickThreshold,
		FrameInterval:  c.FrameInterval,
	}
}

// ViewportOptions returns the canvas size and zoom bounds.
func (c *Config) ViewportOptions() *viewport.Options {
	return &viewport.Options{
		Size:    r2.Vec{X: c.CanvasWidth, Y: c.CanvasHeight},
		MinZoom: c.MinZoom,
		MaxZoom: c.MaxZoom,
	}
}
