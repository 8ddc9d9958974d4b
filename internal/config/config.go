package config

import (
	"fmt"
	"os"
	"time"

	"verity/internal/domain"
)

type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string

	DatabaseURL string
	RedisAddr   string

	ScannerURL  string
	ScanTimeout time.Duration

	IngestWorkers int
	MaxExpertLoad int

	JWTSecret string

	ConsensusTieBreak domain.TieBreak
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
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

func Load() (Config, error) {
	cfg := Config{
		Env:           getenv("APP_ENV", "development"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		ScannerURL:    getenv("SCANNER_URL", "http://localhost:5000"),
		ScanTimeout:   getenvDuration("SCAN_TIMEOUT", 2*time.Minute),
		IngestWorkers: getenvInt("INGEST_WORKERS", 2),
		MaxExpertLoad: getenvInt("MAX_EXPERT_LOAD", 5),
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}
	switch tb := domain.TieBreak(getenv("CONSENSUS_TIE_BREAK", string(domain.TieBreakVerified))); tb {
	case domain.TieBreakVerified, domain.TieBreakRejected:
		cfg.ConsensusTieBreak = tb
	default:
		return cfg, fmt.Errorf("CONSENSUS_TIE_BREAK: unknown value %q", tb)
	}
	return cfg, nil
}
