package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL  string
	HTTPAddr     string
	LogLevel     string
	Env          string // dev|prod
	SentryDSN    string
	Location     *time.Location
	BatchWorkers int // phase-1 parallelism for class-wide result runs
	TermEndEvery time.Duration
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Africa/Kampala")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	cfg := &Config{
		DatabaseURL:  mustEnv("DATABASE_URL"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		Env:          getenv("ENV", "dev"),
		SentryDSN:    os.Getenv("SENTRY_DSN"),
		Location:     loc,
		BatchWorkers: getenvInt("BATCH_WORKERS", 4),
		TermEndEvery: getenvDuration("TERM_END_EVERY", 24*time.Hour),
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
