// Package config loads runtime configuration from PARLOR_* environment
// variables with command-line flag overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
)

const (
	envListenAddr      = "PARLOR_LISTEN_ADDR"
	envAllowedOrigins  = "PARLOR_ALLOWED_ORIGINS"
	envLogLevel        = "PARLOR_LOG_LEVEL"
	envLogFormat       = "PARLOR_LOG_FORMAT"
	envShutdownTimeout = "PARLOR_SHUTDOWN_TIMEOUT"

	// WebSocket signaling hardening.
	envMaxSignalingMessageBytes      = "PARLOR_MAX_SIGNALING_MESSAGE_BYTES"
	envMaxSignalingMessagesPerSecond = "PARLOR_MAX_SIGNALING_MESSAGES_PER_SECOND"
	envWSPingInterval                = "PARLOR_WS_PING_INTERVAL"
	envWSPongWait                    = "PARLOR_WS_PONG_WAIT"
	envSendQueueBytes                = "PARLOR_SEND_QUEUE_BYTES"

	// Client-side negotiation policy.
	envNegotiationTimeout = "PARLOR_NEGOTIATION_TIMEOUT"

	// coturn TURN REST (ephemeral) credentials, served via GET /ice.
	envTURNRESTSharedSecret   = "PARLOR_TURN_REST_SHARED_SECRET"
	envTURNRESTTTLSeconds     = "PARLOR_TURN_REST_TTL_SECONDS"
	envTURNRESTUsernamePrefix = "PARLOR_TURN_REST_USERNAME_PREFIX"
	envTURNRESTRealm          = "PARLOR_TURN_REST_REALM"

	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second

	// DefaultMaxSignalingMessageBytes must accommodate a full SDP (a few tens
	// of KiB with many candidates) plus envelope overhead.
	DefaultMaxSignalingMessageBytes      = 128 << 10
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultWSPingInterval                = 20 * time.Second
	DefaultWSPongWait                    = 30 * time.Second
	DefaultSendQueueBytes                = 1 << 20

	DefaultNegotiationTimeout = 30 * time.Second

	DefaultTURNRESTTTLSeconds     = 600
	DefaultTURNRESTUsernamePrefix = "parlor"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogLevel        slog.Level
	LogFormat       LogFormat
	ShutdownTimeout time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	WSPingInterval                time.Duration
	WSPongWait                    time.Duration
	SendQueueBytes                int

	NegotiationTimeout time.Duration

	// ICEServers is served to clients via GET /ice and used when constructing
	// client-side PeerConnections. Parse errors are deferred into
	// iceConfigErr so a bad ICE config degrades /ice instead of killing boot.
	ICEServers   []webrtc.ICEServer
	iceConfigErr error

	TURNRESTSharedSecret   string
	TURNRESTTTLSeconds     int64
	TURNRESTUsernamePrefix string
	TURNRESTRealm          string
}

// ICEConfigError reports a deferred ICE configuration parse error, if any.
func (c Config) ICEConfigError() error { return c.iceConfigErr }

// Load builds a Config from the process environment and args. Flags override
// environment values.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	cfg := Config{
		ListenAddr:      envOrDefault(lookup, envListenAddr, DefaultListenAddr),
		AllowedOrigins:  splitCommaList(envOrDefault(lookup, envAllowedOrigins, "")),
		LogFormat:       LogFormat(envOrDefault(lookup, envLogFormat, string(LogFormatText))),
		ShutdownTimeout: DefaultShutdownTimeout,

		MaxSignalingMessageBytes:      DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: DefaultMaxSignalingMessagesPerSecond,
		WSPingInterval:                DefaultWSPingInterval,
		WSPongWait:                    DefaultWSPongWait,
		SendQueueBytes:                DefaultSendQueueBytes,

		NegotiationTimeout: DefaultNegotiationTimeout,

		TURNRESTSharedSecret:   envOrDefault(lookup, envTURNRESTSharedSecret, ""),
		TURNRESTTTLSeconds:     DefaultTURNRESTTTLSeconds,
		TURNRESTUsernamePrefix: envOrDefault(lookup, envTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix),
		TURNRESTRealm:          envOrDefault(lookup, envTURNRESTRealm, ""),
	}

	level, err := parseLogLevel(envOrDefault(lookup, envLogLevel, "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	for _, dur := range []struct {
		key string
		dst *time.Duration
	}{
		{envShutdownTimeout, &cfg.ShutdownTimeout},
		{envWSPingInterval, &cfg.WSPingInterval},
		{envWSPongWait, &cfg.WSPongWait},
		{envNegotiationTimeout, &cfg.NegotiationTimeout},
	} {
		if *dur.dst, err = envDurationOrDefault(lookup, dur.key, *dur.dst); err != nil {
			return Config{}, err
		}
	}

	maxBytes, err := envIntOrDefault(lookup, envMaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSignalingMessageBytes = int64(maxBytes)

	if cfg.MaxSignalingMessagesPerSecond, err = envIntOrDefault(lookup, envMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.SendQueueBytes, err = envIntOrDefault(lookup, envSendQueueBytes, DefaultSendQueueBytes); err != nil {
		return Config{}, err
	}

	ttl, err := envIntOrDefault(lookup, envTURNRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.TURNRESTTTLSeconds = int64(ttl)

	cfg.ICEServers, cfg.iceConfigErr = parseICEServersFromValues(
		envOrDefault(lookup, envICEServersJSON, ""),
		envOrDefault(lookup, envStunURLs, ""),
		envOrDefault(lookup, envTurnURLs, ""),
		envOrDefault(lookup, envTurnUsername, ""),
		envOrDefault(lookup, envTurnCredential, ""),
		cfg.TURNRESTSharedSecret != "",
	)

	fs := pflag.NewFlagSet("parlor", pflag.ContinueOnError)
	listenAddr := fs.StringP("listen-addr", "a", cfg.ListenAddr, "listen address")
	logLevel := fs.StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", string(cfg.LogFormat), "log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.ListenAddr = *listenAddr
	cfg.LogFormat = LogFormat(*logFormat)
	if *logLevel != "" {
		if cfg.LogLevel, err = parseLogLevel(*logLevel); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s must not be empty", envListenAddr)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be > 0", envMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be > 0", envMaxSignalingMessagesPerSecond)
	}
	if c.WSPongWait <= c.WSPingInterval {
		return fmt.Errorf("%s must be greater than %s", envWSPongWait, envWSPingInterval)
	}
	if c.SendQueueBytes <= 0 {
		return fmt.Errorf("%s must be > 0", envSendQueueBytes)
	}
	if c.NegotiationTimeout < 0 {
		return fmt.Errorf("%s must not be negative", envNegotiationTimeout)
	}
	if c.TURNRESTSharedSecret != "" && c.TURNRESTTTLSeconds <= 0 {
		return fmt.Errorf("%s must be > 0", envTURNRESTTTLSeconds)
	}
	return nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
}

func splitCommaList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
