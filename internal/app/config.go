package app

import "time"

// Config holds all configurable parameters for the application.
type Config struct {
	RootDir   string
	Port      int
	AuditSize int
	AuditFile string
	LogLevel  string

	TemplateEngine string // "jinja2" or "expr"
	RecordDir      string // relative to RootDir

	BreakerFailures int
	BreakerCooldown time.Duration

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout time.Duration
	// WriteTimeout must outlast the longest injected delay; Timeout faults
	// hold a response for two minutes by default.
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./mock",
		Port:      8080,
		AuditSize: 500,
		LogLevel:  "debug",

		TemplateEngine: "jinja2",
		RecordDir:      "recorded",

		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 200 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}
