package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Stream is the persisted configuration for one video source.
// Exactly one of WebRTCURL or RTSPURL must be set; FFmpegCmd must contain
// the INPUT_URL placeholder. Per-stream validation is the registry's job.
type Stream struct {
	Name            string `yaml:"name"`
	WebRTCURL       string `yaml:"webrtc_url,omitempty"`
	RTSPURL         string `yaml:"rtsp_url,omitempty"`
	FFmpegCmd       string `yaml:"ffmpeg_cmd"`
	VideoDir        string `yaml:"video_dir"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	Enabled         bool   `yaml:"enabled"`
	UploadToYouTube bool   `yaml:"upload_to_youtube"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Recording struct {
		StartGracePeriod    time.Duration `yaml:"start_grace_period"`
		StopGracePeriod     time.Duration `yaml:"stop_grace_period"`
		MaxRestarts         int           `yaml:"max_restarts"`
		RestartInitialDelay time.Duration `yaml:"restart_initial_delay"`
		RestartMaxDelay     time.Duration `yaml:"restart_max_delay"`
	} `yaml:"recording"`

	Upload struct {
		Workers        int           `yaml:"workers"`
		QueueSize      int           `yaml:"queue_size"`
		MaxAttempts    int           `yaml:"max_attempts"`
		InitialBackoff time.Duration `yaml:"initial_backoff"`
		MaxBackoff     time.Duration `yaml:"max_backoff"`
		RequestsPerMin float64       `yaml:"requests_per_minute"`
		DatabasePath   string        `yaml:"database_path"`
	} `yaml:"upload"`

	YouTube struct {
		ClientID        string        `yaml:"client_id"`
		ClientSecret    string        `yaml:"client_secret"`
		RedirectURL     string        `yaml:"redirect_url"`
		PendingStateTTL time.Duration `yaml:"pending_state_ttl"`
		RefreshMargin   time.Duration `yaml:"refresh_margin"`
		Privacy         string        `yaml:"privacy"`
		CategoryID      string        `yaml:"category_id"`
	} `yaml:"youtube"`

	Broadcast struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"broadcast"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Streams []Stream `yaml:"streams"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Recording
	if c.Recording.StartGracePeriod <= 0 {
		return fmt.Errorf("recording.start_grace_period must be > 0")
	}
	if c.Recording.StopGracePeriod <= 0 {
		return fmt.Errorf("recording.stop_grace_period must be > 0")
	}
	if c.Recording.MaxRestarts < 0 {
		return fmt.Errorf("recording.max_restarts must be >= 0")
	}
	if c.Recording.RestartInitialDelay <= 0 {
		return fmt.Errorf("recording.restart_initial_delay must be > 0")
	}
	if c.Recording.RestartMaxDelay < c.Recording.RestartInitialDelay {
		return fmt.Errorf("recording.restart_max_delay must be >= restart_initial_delay")
	}

	// Upload
	if c.Upload.Workers <= 0 {
		return fmt.Errorf("upload.workers must be > 0")
	}
	if c.Upload.QueueSize <= 0 {
		return fmt.Errorf("upload.queue_size must be > 0")
	}
	if c.Upload.MaxAttempts <= 0 {
		return fmt.Errorf("upload.max_attempts must be > 0")
	}
	if c.Upload.InitialBackoff <= 0 {
		return fmt.Errorf("upload.initial_backoff must be > 0")
	}
	if c.Upload.MaxBackoff < c.Upload.InitialBackoff {
		return fmt.Errorf("upload.max_backoff must be >= initial_backoff")
	}
	if c.Upload.RequestsPerMin <= 0 {
		return fmt.Errorf("upload.requests_per_minute must be > 0")
	}
	if c.Upload.DatabasePath == "" {
		return fmt.Errorf("upload.database_path must not be empty")
	}

	// YouTube
	if c.YouTube.RedirectURL == "" {
		return fmt.Errorf("youtube.redirect_url must not be empty")
	}
	if c.YouTube.PendingStateTTL <= 0 {
		return fmt.Errorf("youtube.pending_state_ttl must be > 0")
	}
	if c.YouTube.RefreshMargin <= 0 {
		return fmt.Errorf("youtube.refresh_margin must be > 0")
	}

	// Broadcast
	if c.Broadcast.BufferSize <= 0 {
		return fmt.Errorf("broadcast.buffer_size must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing.enabled=true")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8086"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Recording.StartGracePeriod = 3 * time.Second
	cfg.Recording.StopGracePeriod = 5 * time.Second
	cfg.Recording.MaxRestarts = 3
	cfg.Recording.RestartInitialDelay = 1 * time.Second
	cfg.Recording.RestartMaxDelay = 30 * time.Second

	cfg.Upload.Workers = 2
	cfg.Upload.QueueSize = 64
	cfg.Upload.MaxAttempts = 5
	cfg.Upload.InitialBackoff = 5 * time.Second
	cfg.Upload.MaxBackoff = 5 * time.Minute
	cfg.Upload.RequestsPerMin = 30
	cfg.Upload.DatabasePath = "streamcorder.db"

	// The redirect target is a loopback address nothing listens on; the
	// browser redirect is pasted back manually to complete authorization.
	cfg.YouTube.RedirectURL = "http://127.0.0.1:8089/oauth2callback"
	cfg.YouTube.PendingStateTTL = 10 * time.Minute
	cfg.YouTube.RefreshMargin = 60 * time.Second
	cfg.YouTube.Privacy = "unlisted"
	cfg.YouTube.CategoryID = "28"

	cfg.Broadcast.BufferSize = 256

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("STREAMCORDER_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("STREAMCORDER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if id := os.Getenv("STREAMCORDER_YOUTUBE_CLIENT_ID"); id != "" {
		c.YouTube.ClientID = id
	}
	if secret := os.Getenv("STREAMCORDER_YOUTUBE_CLIENT_SECRET"); secret != "" {
		c.YouTube.ClientSecret = secret
	}
	if path := os.Getenv("STREAMCORDER_DB_PATH"); path != "" {
		c.Upload.DatabasePath = path
	}
}
