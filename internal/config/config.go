package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the broker listens on.
	DefaultAddr = ":8080"
	// DefaultGRPCAddr is where the gRPC health service listens. Empty disables it.
	DefaultGRPCAddr = ""
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 1024

	// DefaultBestOf is how many rounds a match is played to unless overridden.
	DefaultBestOf = 3
	// DefaultExtendedMode enables the lizard and spock symbols.
	DefaultExtendedMode = true

	// DefaultHeartbeatTTL is how long a silent occupant stays marked connected.
	DefaultHeartbeatTTL = 2 * time.Minute
	// DefaultSweepInterval controls how often stale occupants are reclaimed.
	DefaultSweepInterval = 30 * time.Second

	// DefaultStateInterval controls how frequently live records are persisted.
	DefaultStateInterval = 30 * time.Second

	// DefaultJournalFlushWindow bounds how frequently journal flushes may be forced.
	DefaultJournalFlushWindow = time.Minute
	// DefaultJournalFlushBurst sets how many forced flushes fit in one window.
	DefaultJournalFlushBurst = 1

	// DefaultLogLevel controls verbosity for broker logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written. Empty logs to stdout only.
	DefaultLogPath = ""
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the live match broker.
type Config struct {
	Address         string
	GRPCAddress     string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int
	TLSCertPath     string
	TLSKeyPath      string

	// AuthSecret signs the HMAC session tokens presented on upgrade. Empty
	// falls back to the guest authenticator, which trusts a player_id query
	// parameter and is only suitable for local development.
	AuthSecret string

	BestOf       int
	ExtendedMode bool

	HeartbeatTTL  time.Duration
	SweepInterval time.Duration

	StatePath     string
	StateInterval time.Duration

	JournalDir         string
	JournalFlushWindow time.Duration
	JournalFlushBurst  int

	// AdminToken authorises the operational endpoints that mutate state,
	// like the forced journal flush. Empty disables those endpoints.
	AdminToken string

	// RedisAddr selects the Redis-backed fanout bus when set; empty keeps the
	// in-process broadcaster.
	RedisAddr     string
	RedisPassword string

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the broker configuration from RPS_* environment variables,
// applying sane defaults and returning descriptive errors for invalid
// overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:            getString("RPS_ADDR", DefaultAddr),
		GRPCAddress:        getString("RPS_GRPC_ADDR", DefaultGRPCAddr),
		AllowedOrigins:     parseList(os.Getenv("RPS_ALLOWED_ORIGINS")),
		MaxPayloadBytes:    DefaultMaxPayloadBytes,
		PingInterval:       DefaultPingInterval,
		MaxClients:         DefaultMaxClients,
		TLSCertPath:        strings.TrimSpace(os.Getenv("RPS_TLS_CERT")),
		TLSKeyPath:         strings.TrimSpace(os.Getenv("RPS_TLS_KEY")),
		AuthSecret:         strings.TrimSpace(os.Getenv("RPS_AUTH_SECRET")),
		BestOf:             DefaultBestOf,
		ExtendedMode:       DefaultExtendedMode,
		HeartbeatTTL:       DefaultHeartbeatTTL,
		SweepInterval:      DefaultSweepInterval,
		StatePath:          strings.TrimSpace(os.Getenv("RPS_STATE_PATH")),
		StateInterval:      DefaultStateInterval,
		JournalDir:         strings.TrimSpace(os.Getenv("RPS_JOURNAL_DIR")),
		JournalFlushWindow: DefaultJournalFlushWindow,
		JournalFlushBurst:  DefaultJournalFlushBurst,
		AdminToken:         strings.TrimSpace(os.Getenv("RPS_ADMIN_TOKEN")),
		RedisAddr:          strings.TrimSpace(os.Getenv("RPS_REDIS_ADDR")),
		RedisPassword:      strings.TrimSpace(os.Getenv("RPS_REDIS_PASSWORD")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("RPS_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("RPS_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("RPS_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RPS_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	applyDuration("RPS_PING_INTERVAL", &cfg.PingInterval, &problems)
	applyDuration("RPS_HEARTBEAT_TTL", &cfg.HeartbeatTTL, &problems)
	applyDuration("RPS_SWEEP_INTERVAL", &cfg.SweepInterval, &problems)
	applyDuration("RPS_STATE_INTERVAL", &cfg.StateInterval, &problems)
	applyDuration("RPS_JOURNAL_FLUSH_WINDOW", &cfg.JournalFlushWindow, &problems)

	if raw := strings.TrimSpace(os.Getenv("RPS_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RPS_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_BEST_OF")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value%2 == 0 {
			problems = append(problems, fmt.Sprintf("RPS_BEST_OF must be a positive odd integer, got %q", raw))
		} else {
			cfg.BestOf = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_EXTENDED_MODE")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RPS_EXTENDED_MODE must be a boolean value, got %q", raw))
		} else {
			cfg.ExtendedMode = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_JOURNAL_FLUSH_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RPS_JOURNAL_FLUSH_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.JournalFlushBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RPS_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RPS_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RPS_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RPS_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RPS_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "RPS_TLS_CERT and RPS_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func applyDuration(key string, target *time.Duration, problems *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*target = duration
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
