package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime settings, resolved from the environment.
type Config struct {
	ListenAddr string

	// STUNServers are offered to browsers for ICE. Comma-separated in env.
	STUNServers []string

	// MaxSessions caps concurrent therapy sessions; further creates are rejected.
	MaxSessions int

	// AutoStopSec is the therapy auto-stop threshold (default 30 minutes).
	AutoStopSec int

	// DefaultFrequencyHz and DefaultVolume seed new sessions.
	DefaultFrequencyHz int
	DefaultVolume      float64

	// ICEGatherTimeoutSec bounds the wait for ICE candidate gathering.
	ICEGatherTimeoutSec int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		STUNServers:         getEnvList("STUN_SERVERS", []string{"stun:stun.l.google.com:19302"}),
		MaxSessions:         getEnvInt("MAX_SESSIONS", 32),
		AutoStopSec:         getEnvInt("AUTO_STOP_SEC", 1800),
		DefaultFrequencyHz:  getEnvInt("DEFAULT_FREQ_HZ", 4000),
		DefaultVolume:       getEnvFloat("DEFAULT_VOLUME", 0.5),
		ICEGatherTimeoutSec: getEnvInt("ICE_GATHER_TIMEOUT_SEC", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
