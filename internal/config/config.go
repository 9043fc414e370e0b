package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"examguard/internal/logging"
	dbconfig "examguard/pkg/database"
)

// EnvPrefix namespaces environment overrides, e.g. EXAMGUARD_HTTP_PORT
const EnvPrefix = "EXAMGUARD"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    dbconfig.Config   `mapstructure:"database"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Proctor     ProctorConfig     `mapstructure:"proctor"`
	Logging     logging.Options   `mapstructure:"logging"`
	Assessments AssessmentsConfig `mapstructure:"assessments"`
	Shutdown    ShutdownConfig    `mapstructure:"shutdown"`
}

// HTTPConfig covers the REST listener
type HTTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// JoinRateLimit is join attempts per minute per client IP
	JoinRateLimit uint `mapstructure:"join_rate_limit"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BufferSize   int           `mapstructure:"buffer_size"`
	// SignalRateLimit is environment signals per minute per candidate
	SignalRateLimit int `mapstructure:"signal_rate_limit"`
}

// ProctorConfig tunes the detector loop and the remote perception calls
type ProctorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	BackoffInterval   time.Duration `mapstructure:"backoff_interval"`
	ObjectSampleRate  float64       `mapstructure:"object_sample_rate"`
	DegradedAfter     int           `mapstructure:"degraded_after"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	PerceptionTimeout time.Duration `mapstructure:"perception_timeout"`
}

// AssessmentsConfig points at the YAML catalog loaded on boot
type AssessmentsConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// ShutdownConfig bounds graceful shutdown
type ShutdownConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DefaultConfig returns production-ready defaults for a single exam room deployment
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
			JoinRateLimit:  20,
		},
		Database: *dbconfig.DefaultConfig(),
		WebSocket: WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			BufferSize:      100,
			SignalRateLimit: 100,
		},
		Proctor: ProctorConfig{
			Interval:          100 * time.Millisecond,
			BackoffInterval:   500 * time.Millisecond,
			ObjectSampleRate:  0.3,
			DegradedAfter:     3,
			StopTimeout:       2 * time.Second,
			PerceptionTimeout: 2 * time.Second,
		},
		Logging: logging.DefaultOptions(),
		Assessments: AssessmentsConfig{
			CatalogPath: "./assessments.yaml",
		},
		Shutdown: ShutdownConfig{
			Timeout:     30 * time.Second,
			Concurrency: 8,
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.JoinRateLimit == 0 {
		return fmt.Errorf("join rate limit must be positive")
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.SignalRateLimit <= 0 {
		return fmt.Errorf("signal rate limit must be positive")
	}

	if c.Proctor.Interval <= 0 || c.Proctor.BackoffInterval <= 0 {
		return fmt.Errorf("proctor intervals must be positive")
	}
	if c.Proctor.ObjectSampleRate < 0 || c.Proctor.ObjectSampleRate > 1 {
		return fmt.Errorf("object sample rate must be between 0 and 1")
	}
	if c.Proctor.DegradedAfter <= 0 {
		return fmt.Errorf("degraded threshold must be positive")
	}
	if c.Proctor.StopTimeout <= 0 || c.Proctor.PerceptionTimeout <= 0 {
		return fmt.Errorf("proctor timeouts must be positive")
	}

	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Shutdown.Concurrency <= 0 {
		return fmt.Errorf("shutdown concurrency must be positive")
	}

	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Loader owns the viper instance so the config can be re-read on change
type Loader struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// setDefaults mirrors DefaultConfig into viper so env vars bind to every key
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("http.join_rate_limit", d.HTTP.JoinRateLimit)

	v.SetDefault("database.path", d.Database.DatabasePath)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.write_timeout", d.Database.WriteTimeout)
	v.SetDefault("database.busy_retries", d.Database.BusyRetries)
	v.SetDefault("database.busy_retry_delay", d.Database.BusyRetryDelay)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.signal_rate_limit", d.WebSocket.SignalRateLimit)

	v.SetDefault("proctor.interval", d.Proctor.Interval)
	v.SetDefault("proctor.backoff_interval", d.Proctor.BackoffInterval)
	v.SetDefault("proctor.object_sample_rate", d.Proctor.ObjectSampleRate)
	v.SetDefault("proctor.degraded_after", d.Proctor.DegradedAfter)
	v.SetDefault("proctor.stop_timeout", d.Proctor.StopTimeout)
	v.SetDefault("proctor.perception_timeout", d.Proctor.PerceptionTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.directory", d.Logging.Directory)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.console", d.Logging.Console)

	v.SetDefault("assessments.catalog_path", d.Assessments.CatalogPath)

	v.SetDefault("shutdown.timeout", d.Shutdown.Timeout)
	v.SetDefault("shutdown.concurrency", d.Shutdown.Concurrency)
}

// Load reads configuration with precedence env > file > defaults.
// configFile may be empty, in which case ./config.yaml and ./config/config.yaml
// are tried. A .env file in the working directory is loaded first if present.
func Load(configFile string) (*Loader, error) {
	// FUNCTIONAL DISCOVERY: a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Loader{v: v, current: cfg}, nil
}

// Config returns the most recently loaded configuration
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the file on change and hands valid configs to onChange.
// Invalid edits are logged and ignored; the previous config stays current.
func (l *Loader) Watch(logger *zap.Logger, onChange func(*Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Configuration file changed, reloading", zap.String("file", e.Name))
		cfg, err := decode(l.v)
		if err != nil {
			logger.Error("Error reloading configuration", zap.Error(err))
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
