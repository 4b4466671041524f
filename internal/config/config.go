package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full runtime configuration, read from the environment
type Config struct {
	HTTPPort string

	StoreBackend string // "mongo" or "memory"
	MongoURI     string
	MongoDB      string

	RedisAddr     string
	RedisPassword string
	NATSURL       string

	JWTSecret string

	Presence PresenceConfig
	Lock     LockConfig
	Janitor  JanitorConfig
	Rooms    RoomLimits

	CORSAllowedOrigins string
	LogLevel           string
	LogFormat          string
}

// PresenceConfig bounds the ephemeral presence cache
type PresenceConfig struct {
	TTL        time.Duration
	StaleAfter time.Duration
}

// LockConfig bounds per-room lock acquisition
type LockConfig struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

// JanitorConfig drives the opportunistic cleanup sweeps
type JanitorConfig struct {
	Interval       time.Duration
	RoomStaleAfter time.Duration
	Retention      time.Duration
	SweepTimeout   time.Duration
}

// RoomLimits bounds room configuration
type RoomLimits struct {
	MinPlayers        int
	MaxPlayers        int
	MinPlayersToStart int
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		HTTPPort:     "8080",
		StoreBackend: "mongo",
		MongoURI:     "mongodb://localhost:27017",
		MongoDB:      "lobbyd",
		RedisAddr:    "localhost:6379",
		JWTSecret:    "dev-secret-change-me",
		Presence: PresenceConfig{
			TTL:        30 * time.Minute,
			StaleAfter: 2 * time.Minute,
		},
		Lock: LockConfig{
			TTL:     5 * time.Second,
			Retries: 8,
			Backoff: 25 * time.Millisecond,
		},
		Janitor: JanitorConfig{
			Interval:       5 * time.Minute,
			RoomStaleAfter: 10 * time.Minute,
			Retention:      time.Hour,
			SweepTimeout:   30 * time.Second,
		},
		Rooms: RoomLimits{
			MinPlayers:        2,
			MaxPlayers:        9,
			MinPlayersToStart: 2,
		},
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not read .env, using process environment")
	}

	d := Default()
	cfg := &Config{
		HTTPPort:      getEnv("HTTP_PORT", d.HTTPPort),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", d.StoreBackend)),
		MongoURI:      getEnv("MONGO_URI", d.MongoURI),
		MongoDB:       getEnv("MONGO_DB", d.MongoDB),
		RedisAddr:     strings.TrimPrefix(getEnv("REDIS_ADDR", d.RedisAddr), "redis://"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		NATSURL:       getEnv("NATS_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", d.JWTSecret),
		Presence: PresenceConfig{
			TTL:        getDuration("PRESENCE_TTL", d.Presence.TTL),
			StaleAfter: getDuration("PRESENCE_STALE_AFTER", d.Presence.StaleAfter),
		},
		Lock: LockConfig{
			TTL:     getDuration("LOCK_TTL", d.Lock.TTL),
			Retries: getInt("LOCK_RETRIES", d.Lock.Retries),
			Backoff: getDuration("LOCK_BACKOFF", d.Lock.Backoff),
		},
		Janitor: JanitorConfig{
			Interval:       getDuration("JANITOR_INTERVAL", d.Janitor.Interval),
			RoomStaleAfter: getDuration("ROOM_STALE_AFTER", d.Janitor.RoomStaleAfter),
			Retention:      getDuration("ROOM_RETENTION", d.Janitor.Retention),
			SweepTimeout:   getDuration("JANITOR_SWEEP_TIMEOUT", d.Janitor.SweepTimeout),
		},
		Rooms: RoomLimits{
			MinPlayers:        getInt("MIN_PLAYERS", d.Rooms.MinPlayers),
			MaxPlayers:        getInt("MAX_PLAYERS", d.Rooms.MaxPlayers),
			MinPlayersToStart: getInt("MIN_PLAYERS_TO_START", d.Rooms.MinPlayersToStart),
		},
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", d.CORSAllowedOrigins),
		LogLevel:           getEnv("LOG_LEVEL", d.LogLevel),
		LogFormat:          getEnv("LOG_FORMAT", d.LogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the lobby cannot run with
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be mongo or memory, got %q", c.StoreBackend)
	}
	durations := map[string]time.Duration{
		"PRESENCE_TTL":          c.Presence.TTL,
		"PRESENCE_STALE_AFTER":  c.Presence.StaleAfter,
		"LOCK_TTL":              c.Lock.TTL,
		"JANITOR_INTERVAL":      c.Janitor.Interval,
		"ROOM_STALE_AFTER":      c.Janitor.RoomStaleAfter,
		"ROOM_RETENTION":        c.Janitor.Retention,
		"JANITOR_SWEEP_TIMEOUT": c.Janitor.SweepTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Lock.Retries < 0 || c.Lock.Backoff < 0 {
		return fmt.Errorf("LOCK_RETRIES and LOCK_BACKOFF must not be negative")
	}
	if c.Rooms.MinPlayers < 1 || c.Rooms.MinPlayers > c.Rooms.MaxPlayers {
		return fmt.Errorf("invalid player bounds: min %d, max %d", c.Rooms.MinPlayers, c.Rooms.MaxPlayers)
	}
	if c.Rooms.MinPlayersToStart < 1 || c.Rooms.MinPlayersToStart > c.Rooms.MaxPlayers {
		return fmt.Errorf("MIN_PLAYERS_TO_START must be within [1, %d]", c.Rooms.MaxPlayers)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

// SetupLogging configures the global logrus logger
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		logrus.WithField("key", key).Warn("ignoring non-integer value")
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		logrus.WithField("key", key).Warn("ignoring unparsable duration")
	}
	return defaultVal
}
