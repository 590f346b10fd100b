package config

import (
	"os"
	"strconv"
	"time"
)

// ServerConfig holds settings for the realtime server runtime.
type ServerConfig struct {
	Env          string
	ListenAddr   string
	Database     DatabaseConfig
	JWT          JWTConfig
	Redis        RedisConfig
	Heartbeat    HeartbeatConfig
	WriteTimeout time.Duration
	HistoryLimit int
	SendBuffer   int
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerURL     string
	Token         string
	UserID        string
	CommandPrefix rune
}

// DatabaseConfig captures storage configuration.
type DatabaseConfig struct {
	Path string
}

// JWTConfig defines token validation parameters for the connection
// handshake. When Require is false, unauthenticated upgrades are allowed
// and identity is bound by the first join frame.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
	Require    bool
}

// RedisConfig enables the cross-instance fanout relay when Addr is set.
type RedisConfig struct {
	Addr string
	DB   int
}

// HeartbeatConfig tunes the liveness probe/reap cycle.
type HeartbeatConfig struct {
	Interval    time.Duration
	ReapTimeout time.Duration
}

// LoadServerConfig builds the server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Env:        envOrDefault("CHATUAL_ENV", "dev"),
		ListenAddr: envOrDefault("CHATUAL_LISTEN_ADDR", ":8080"),
		Database:   DatabaseConfig{Path: envOrDefault("CHATUAL_DB_PATH", "chatual.db")},
		JWT:        loadJWTConfig(),
		Redis: RedisConfig{
			Addr: envOrDefault("CHATUAL_REDIS_ADDR", ""),
			DB:   envInt("CHATUAL_REDIS_DB", 0),
		},
		Heartbeat: HeartbeatConfig{
			Interval:    envDuration("CHATUAL_HEARTBEAT_INTERVAL", 30*time.Second),
			ReapTimeout: envDuration("CHATUAL_REAP_TIMEOUT", 3*time.Minute),
		},
		WriteTimeout: envDuration("CHATUAL_WRITE_TIMEOUT", 10*time.Second),
		HistoryLimit: envInt("CHATUAL_HISTORY_LIMIT", 100),
		SendBuffer:   envInt("CHATUAL_SEND_BUFFER", 64),
	}
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() ClientConfig {
	prefix := envOrDefault("CHATUAL_COMMAND_PREFIX", "/")
	runes := []rune(prefix)
	commandPrefix := '/'
	if len(runes) > 0 {
		commandPrefix = runes[0]
	}
	return ClientConfig{
		ServerURL:     envOrDefault("CHATUAL_SERVER_URL", "ws://localhost:8080/ws"),
		Token:         envOrDefault("CHATUAL_TOKEN", ""),
		UserID:        envOrDefault("CHATUAL_USER_ID", ""),
		CommandPrefix: commandPrefix,
	}
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:     envOrDefault("CHATUAL_JWT_SECRET", "replace-me"),
		Issuer:     envOrDefault("CHATUAL_JWT_ISSUER", "chatual"),
		Expiration: envDuration("CHATUAL_JWT_EXPIRATION", 24*time.Hour),
		Require:    envBool("CHATUAL_JWT_REQUIRE", false),
	}
}

func envOrDefault(key, value string) string {
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(env); err == nil {
			return parsed
		}
	}
	return def
}
