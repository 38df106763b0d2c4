package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Server struct {
	HTTPPort  string // e.g. :8080
	JWTSecret string // HS256 key for management API bearer tokens
	JWTIssuer string
}

type Delivery struct {
	Timeout          time.Duration   // per-attempt HTTP timeout
	UserAgent        string          // fixed User-Agent on outbound requests
	MaxAttempts      int             // total attempts before a record goes terminal
	BackoffSchedule  []time.Duration // attempt-indexed delays, clamped at the end
	MaxResponseBytes int             // stored response body cap
}

type Retry struct {
	SweepInterval time.Duration // how often due records are swept
	BatchSize     int           // max records per sweep tick
	MaxInFlight   int           // concurrent re-dispatches per tick
}

type Health struct {
	SweepInterval    time.Duration // how often endpoint health is swept
	FailureThreshold int           // consecutive failures before quarantine
}

type Intake struct {
	Enabled        bool
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	Topic          string // application event topic
	Channel        string // consumer channel
}

type Config struct {
	AppName   string
	StoreKind string // postgres | memory
	DB        DB
	Server    Server
	Delivery  Delivery
	Retry     Retry
	Health    Health
	Intake    Intake
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultBackoff() []time.Duration {
	return []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		30 * time.Minute,
		2 * time.Hour,
		12 * time.Hour,
	}
}

// parseBackoffSchedule parses a comma-separated duration list, e.g.
// "1m,5m,30m,2h,12h". Unparseable entries are skipped; an empty result
// falls back to the default schedule.
func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return defaultBackoff()
	}
	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		if d, err := time.ParseDuration(strings.TrimSpace(part)); err == nil {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return defaultBackoff()
	}
	return durations
}

func FromEnv() Config {
	return Config{
		AppName:   getenv("APP_NAME", "hookline"),
		StoreKind: getenv("STORE_KIND", "postgres"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookline"),
		},
		Server: Server{
			HTTPPort:  getenv("HTTP_PORT", ":8080"),
			JWTSecret: getenv("JWT_SECRET", ""),
			JWTIssuer: getenv("JWT_ISSUER", "hookline"),
		},
		Delivery: Delivery{
			Timeout:          getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
			UserAgent:        getenv("DELIVERY_USER_AGENT", "hookline-webhooks/1.0"),
			MaxAttempts:      getenvInt("MAX_ATTEMPTS", 5),
			BackoffSchedule:  parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			MaxResponseBytes: getenvInt("MAX_RESPONSE_BYTES", 4096),
		},
		Retry: Retry{
			SweepInterval: getenvDuration("RETRY_SWEEP_INTERVAL", 1*time.Minute),
			BatchSize:     getenvInt("RETRY_BATCH_SIZE", 200),
			MaxInFlight:   getenvInt("RETRY_MAX_IN_FLIGHT", 50),
		},
		Health: Health{
			SweepInterval:    getenvDuration("HEALTH_SWEEP_INTERVAL", 10*time.Minute),
			FailureThreshold: getenvInt("FAILURE_THRESHOLD", 10),
		},
		Intake: Intake{
			Enabled:        getenvBool("INTAKE_ENABLED", false),
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			Topic:          getenv("NSQ_EVENTS_TOPIC", "events"),
			Channel:        getenv("NSQ_EVENTS_CHANNEL", "hookline"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
