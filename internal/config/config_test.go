package config

import (
	"log/slog"
	"testing"
	"time"
)

func lookupFromMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFromMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != LogFormatText {
		t.Fatalf("logging defaults: level=%v format=%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.NegotiationTimeout != DefaultNegotiationTimeout {
		t.Fatalf("NegotiationTimeout = %v", cfg.NegotiationTimeout)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("unexpected ice config error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"PARLOR_LISTEN_ADDR":                       "0.0.0.0:9999",
		"PARLOR_LOG_LEVEL":                         "debug",
		"PARLOR_LOG_FORMAT":                        "json",
		"PARLOR_WS_PING_INTERVAL":                  "5s",
		"PARLOR_WS_PONG_WAIT":                      "7s",
		"PARLOR_MAX_SIGNALING_MESSAGE_BYTES":       "4096",
		"PARLOR_MAX_SIGNALING_MESSAGES_PER_SECOND": "10",
		"PARLOR_NEGOTIATION_TIMEOUT":               "1m",
		"PARLOR_STUN_URLS":                         "stun:stun.example.com:3478",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" || cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.WSPingInterval != 5*time.Second || cfg.WSPongWait != 7*time.Second {
		t.Fatalf("keepalive overrides: ping=%v pong=%v", cfg.WSPingInterval, cfg.WSPongWait)
	}
	if cfg.MaxSignalingMessageBytes != 4096 || cfg.MaxSignalingMessagesPerSecond != 10 {
		t.Fatalf("hardening overrides: %+v", cfg)
	}
	if cfg.NegotiationTimeout != time.Minute {
		t.Fatalf("NegotiationTimeout = %v", cfg.NegotiationTimeout)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("ICEServers = %+v", cfg.ICEServers)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		"PARLOR_LISTEN_ADDR": "127.0.0.1:1111",
		"PARLOR_LOG_LEVEL":   "warn",
	}
	cfg, err := load(lookupFromMap(env), []string{"--listen-addr", "127.0.0.1:2222", "--log-level", "error"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:2222" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"PARLOR_LOG_LEVEL": "verbose"}},
		{"bad log format", map[string]string{"PARLOR_LOG_FORMAT": "yaml"}},
		{"bad duration", map[string]string{"PARLOR_SHUTDOWN_TIMEOUT": "soon"}},
		{"pong not after ping", map[string]string{"PARLOR_WS_PING_INTERVAL": "10s", "PARLOR_WS_PONG_WAIT": "5s"}},
		{"zero message budget", map[string]string{"PARLOR_MAX_SIGNALING_MESSAGE_BYTES": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupFromMap(tc.env), nil); err == nil {
				t.Fatalf("expected error for %v", tc.env)
			}
		})
	}
}

func TestLoad_TURNRESTSecretAllowsCredentiallessTURNURLs(t *testing.T) {
	env := map[string]string{
		"PARLOR_TURN_URLS":               "turn:turn.example.com:3478",
		"PARLOR_TURN_REST_SHARED_SECRET": "s3cr3t",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("turn urls without static creds rejected despite rest secret: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Username != "" {
		t.Fatalf("ICEServers = %+v", cfg.ICEServers)
	}
}

func TestLoad_BadICEConfigIsDeferred(t *testing.T) {
	env := map[string]string{"PARLOR_ICE_SERVERS_JSON": "{not json"}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load should defer ice errors, got: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatal("expected deferred ice config error")
	}
}
