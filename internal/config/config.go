package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dietpi-dashboard/internal/model"
)

const (
	EnvPrefix        = "DP_DASHBOARD_"
	HardcodedVersion = "v0.7.0"
)

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ProbeListenAddr string        `yaml:"probe_listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Version         string        `yaml:"-"`

	TLSEnabled  bool   `yaml:"tls"`
	TLSCertPath string `yaml:"cert"`
	TLSKeyPath  string `yaml:"key"`

	LogJSON  bool   `yaml:"log_json"`
	LogLevel string `yaml:"log_level"`

	AuthEnabled  bool          `yaml:"pass"`
	PasswordHash string        `yaml:"hash"`
	Secret       string        `yaml:"secret"`
	TokenExpiry  time.Duration `yaml:"expiry"`

	CollectInterval       time.Duration `yaml:"collect_interval"`
	TopicReadTimeout      time.Duration `yaml:"topic_read_timeout"`
	SlowTopicRefresh      time.Duration `yaml:"slow_topic_refresh"`
	Topics                []string      `yaml:"topics"`
	CollectorErrorBackoff time.Duration `yaml:"collector_error_backoff"`
	MaxCollectFailures    int           `yaml:"max_collect_failures"`
	ProcessLimit          int           `yaml:"process_limit"`

	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	MaxSessions          int           `yaml:"max_sessions"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	ControlQueueCapacity int           `yaml:"control_queue_capacity"`

	CommandTimeout  time.Duration `yaml:"command_timeout"`
	SoftwareTimeout time.Duration `yaml:"software_timeout"`
	CommandBacklog  int           `yaml:"command_backlog"`
	ShellEnabled    bool          `yaml:"shell_enabled"`
	ShellPath       string        `yaml:"shell_path"`
	PowerEnabled    bool          `yaml:"power_enabled"`
	FileRoot        string        `yaml:"file_root"`
	DietPiDir       string        `yaml:"dietpi_dir"`

	WebSocketWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	WebSocketPingInterval time.Duration `yaml:"ws_ping_interval"`
	WebSocketReadLimit    int64         `yaml:"ws_read_limit"`
	AllowedOrigins        []string      `yaml:"allowed_origins"`
}

// Default mirrors the values the dashboard ships with.
func Default() Config {
	return Config{
		ListenAddr:            ":5252",
		ProbeListenAddr:       "127.0.0.1:5253",
		ShutdownTimeout:       15 * time.Second,
		Version:               HardcodedVersion,
		LogLevel:              "info",
		TokenExpiry:           time.Hour,
		CollectInterval:       2 * time.Second,
		TopicReadTimeout:      time.Second,
		SlowTopicRefresh:      time.Minute,
		Topics:                topicNames(model.AllTopics),
		CollectorErrorBackoff: 1500 * time.Millisecond,
		MaxCollectFailures:    30,
		ProcessLimit:          0,
		HandshakeTimeout:      10 * time.Second,
		IdleTimeout:           30 * time.Second,
		SweepInterval:         5 * time.Second,
		MaxSessions:           32,
		QueueCapacity:         4,
		ControlQueueCapacity:  32,
		CommandTimeout:        time.Minute,
		SoftwareTimeout:       30 * time.Minute,
		CommandBacklog:        8,
		ShellEnabled:          true,
		ShellPath:             "/bin/sh",
		PowerEnabled:          true,
		FileRoot:              "/",
		DietPiDir:             "/boot/dietpi",
		WebSocketWriteTimeout: 5 * time.Second,
		WebSocketPingInterval: 15 * time.Second,
		WebSocketReadLimit:    1 << 20,
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then a .env file and the process environment. Overrides run last,
// before validation.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG"))
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()
	cfg.mergeEnv()
	for _, apply := range overrides {
		apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.ListenAddr = env("LISTEN_ADDR", c.ListenAddr)
	c.ProbeListenAddr = envRaw("PROBE_ADDR", c.ProbeListenAddr)
	c.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.TLSEnabled = envBool("TLS", c.TLSEnabled)
	c.TLSCertPath = env("CERT", c.TLSCertPath)
	c.TLSKeyPath = env("KEY", c.TLSKeyPath)
	c.LogJSON = envBool("LOG_JSON", c.LogJSON)
	c.LogLevel = strings.ToLower(env("LOG_LEVEL", c.LogLevel))
	c.AuthEnabled = envBool("PASS", c.AuthEnabled)
	c.PasswordHash = strings.ToLower(env("HASH", c.PasswordHash))
	c.Secret = env("SECRET", c.Secret)
	c.TokenExpiry = envSeconds("EXPIRY", c.TokenExpiry)
	c.CollectInterval = envDuration("COLLECT_INTERVAL", c.CollectInterval)
	c.TopicReadTimeout = envDuration("TOPIC_READ_TIMEOUT", c.TopicReadTimeout)
	c.SlowTopicRefresh = envDuration("SLOW_TOPIC_REFRESH", c.SlowTopicRefresh)
	c.Topics = envList("TOPICS", c.Topics)
	c.CollectorErrorBackoff = envDuration("COLLECTOR_ERROR_BACKOFF", c.CollectorErrorBackoff)
	c.MaxCollectFailures = envInt("MAX_COLLECT_FAILURES", c.MaxCollectFailures)
	c.ProcessLimit = envInt("PROCESS_LIMIT", c.ProcessLimit)
	c.HandshakeTimeout = envDuration("HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.IdleTimeout = envDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.SweepInterval = envDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.MaxSessions = envInt("MAX_SESSIONS", c.MaxSessions)
	c.QueueCapacity = envInt("QUEUE_CAPACITY", c.QueueCapacity)
	c.ControlQueueCapacity = envInt("CONTROL_QUEUE_CAPACITY", c.ControlQueueCapacity)
	c.CommandTimeout = envDuration("COMMAND_TIMEOUT", c.CommandTimeout)
	c.SoftwareTimeout = envDuration("SOFTWARE_TIMEOUT", c.SoftwareTimeout)
	c.CommandBacklog = envInt("COMMAND_BACKLOG", c.CommandBacklog)
	c.ShellEnabled = envBool("SHELL_ENABLED", c.ShellEnabled)
	c.ShellPath = env("SHELL_PATH", c.ShellPath)
	c.PowerEnabled = envBool("POWER_ENABLED", c.PowerEnabled)
	c.FileRoot = env("FILE_ROOT", c.FileRoot)
	c.DietPiDir = env("DIETPI_DIR", c.DietPiDir)
	c.WebSocketWriteTimeout = envDuration("WS_WRITE_TIMEOUT", c.WebSocketWriteTimeout)
	c.WebSocketPingInterval = envDuration("WS_PING_INTERVAL", c.WebSocketPingInterval)
	c.WebSocketReadLimit = int64(envInt("WS_READ_LIMIT", int(c.WebSocketReadLimit)))
	c.AllowedOrigins = envList("ALLOWED_ORIGINS", c.AllowedOrigins)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("DP_DASHBOARD_LISTEN_ADDR is required")
	}
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("version must not be empty")
	}
	if c.CollectInterval <= 0 {
		return errors.New("collect interval must be > 0")
	}
	if c.TopicReadTimeout <= 0 || c.TopicReadTimeout > c.CollectInterval {
		return errors.New("topic read timeout must be > 0 and not exceed the collect interval")
	}
	if _, err := model.ParseTopics(c.Topics); err != nil {
		return fmt.Errorf("topics: %w", err)
	}
	if len(c.Topics) == 0 {
		return errors.New("at least one topic must be enabled")
	}
	if c.HandshakeTimeout <= 0 || c.IdleTimeout <= 0 || c.SweepInterval <= 0 {
		return errors.New("handshake, idle and sweep intervals must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("DP_DASHBOARD_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.MaxSessions <= 0 {
		return errors.New("DP_DASHBOARD_MAX_SESSIONS must be > 0")
	}
	if c.QueueCapacity <= 0 || c.ControlQueueCapacity <= 0 {
		return errors.New("queue capacities must be > 0")
	}
	if c.CommandTimeout <= 0 || c.SoftwareTimeout <= 0 {
		return errors.New("command timeouts must be > 0")
	}
	if c.CommandBacklog <= 0 {
		return errors.New("DP_DASHBOARD_COMMAND_BACKLOG must be > 0")
	}
	if !filepath.IsAbs(c.FileRoot) {
		return errors.New("file root must be an absolute path")
	}
	if c.ControlQueueCapacity <= c.CommandBacklog {
		return errors.New("control queue capacity must exceed the command backlog so every result fits")
	}
	if c.AuthEnabled {
		if len(c.PasswordHash) != 128 {
			return errors.New("hash must be a hex encoded SHA-512 digest when pass is enabled")
		}
		if c.Secret == "" {
			return errors.New("secret is required when pass is enabled")
		}
		if c.TokenExpiry <= 0 {
			return errors.New("expiry must be > 0")
		}
	}
	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return errors.New("both cert and key are required when tls is enabled")
	}
	return nil
}

// EnabledTopics returns the validated topic set.
func (c Config) EnabledTopics() model.TopicSet {
	set, err := model.ParseTopics(c.Topics)
	if err != nil {
		return model.TopicSet{}
	}
	return set
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls cert/key: %w", err)
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{crt}}, nil
}

func topicNames(topics []model.Topic) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, string(t))
	}
	return out
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return fallback
	}
	return v
}

// envRaw distinguishes an explicitly empty variable from an unset one.
func envRaw(key, fallback string) string {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(EnvPrefix + key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// envSeconds accepts either a bare number of seconds or a Go duration.
func envSeconds(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return envDuration(key, fallback)
}

func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
