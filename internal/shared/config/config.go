package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bkohler93/match3-backend/internal/shared/utils"
)

type EventsBackend string

const (
	EventsNone  EventsBackend = "none"
	EventsRedis EventsBackend = "redis"
	EventsNATS  EventsBackend = "nats"
)

type Config struct {
	// Server
	ListenAddr string
	LogLevel   string

	// Gameplay
	MatchDuration       time.Duration
	RematchTimeout      time.Duration
	GarbageCancelWindow time.Duration

	// Connections
	MaxMalformedMessages int
	IdleTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxMessageSize       int64
	OutboundBuffer       int
	ConnectInterval      time.Duration

	// Match events
	EventsBackend     EventsBackend
	RedisAddr         string
	RedisPassword     string
	RedisEventsStream string
	NATSURL           string
	NATSEventsSubject string
}

// Load reads the environment (and a local .env outside production) into a Config.
func Load() (*Config, error) {
	if err := utils.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var p parser
	cfg := &Config{
		ListenAddr:           getEnv("LISTEN_ADDR", "127.0.0.1:9001"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MatchDuration:        p.duration("MATCH_DURATION", 90*time.Second),
		RematchTimeout:       p.duration("REMATCH_TIMEOUT", 30*time.Second),
		GarbageCancelWindow:  p.duration("GARBAGE_CANCEL_WINDOW", 2500*time.Millisecond),
		MaxMalformedMessages: p.int("MAX_MALFORMED_MESSAGES", 10),
		IdleTimeout:          p.duration("IDLE_TIMEOUT", 60*time.Second),
		WriteTimeout:         p.duration("WRITE_TIMEOUT", 10*time.Second),
		MaxMessageSize:       int64(p.int("MAX_MESSAGE_SIZE", 4096)),
		OutboundBuffer:       p.int("OUTBOUND_BUFFER", 256),
		ConnectInterval:      p.duration("CONNECT_INTERVAL", 0),
		EventsBackend:        EventsBackend(getEnv("EVENTS_BACKEND", string(EventsNone))),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PW"),
		RedisEventsStream:    getEnv("REDIS_EVENTS_STREAM", "match3:events"),
		NATSURL:              getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSEventsSubject:    getEnv("NATS_EVENTS_SUBJECT", "match3.events"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MatchDuration < time.Second:
		return fmt.Errorf("MATCH_DURATION must be at least 1s, got %s", c.MatchDuration)
	case c.RematchTimeout <= 0:
		return fmt.Errorf("REMATCH_TIMEOUT must be positive, got %s", c.RematchTimeout)
	case c.GarbageCancelWindow < 0:
		return fmt.Errorf("GARBAGE_CANCEL_WINDOW must not be negative, got %s", c.GarbageCancelWindow)
	case c.MaxMalformedMessages < 1:
		return fmt.Errorf("MAX_MALFORMED_MESSAGES must be at least 1, got %d", c.MaxMalformedMessages)
	case c.IdleTimeout <= 0 || c.WriteTimeout <= 0:
		return fmt.Errorf("IDLE_TIMEOUT and WRITE_TIMEOUT must be positive")
	case c.MaxMessageSize < 64:
		return fmt.Errorf("MAX_MESSAGE_SIZE must be at least 64, got %d", c.MaxMessageSize)
	case c.OutboundBuffer < 1:
		return fmt.Errorf("OUTBOUND_BUFFER must be at least 1, got %d", c.OutboundBuffer)
	case c.ConnectInterval < 0:
		return fmt.Errorf("CONNECT_INTERVAL must not be negative, got %s", c.ConnectInterval)
	}
	switch c.EventsBackend {
	case EventsNone, EventsRedis, EventsNATS:
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of none, redis, nats, got %q", c.EventsBackend)
	}
	return nil
}

// MatchSeconds is the countdown length in whole seconds.
func (c *Config) MatchSeconds() int {
	return int(c.MatchDuration / time.Second)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so Load can report it with its key.
type parser struct {
	err error
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return defaultValue
	}
	return d
}

func (p *parser) int(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return defaultValue
	}
	return n
}
