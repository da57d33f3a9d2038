package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string

	// RoomGrace is how long an empty room survives before the sweep
	// reclaims it. Zero removes a room the moment its last member leaves.
	RoomGrace time.Duration

	TombstoneTTL        time.Duration
	TombstoneGCInterval time.Duration
	RoomSweepInterval   time.Duration

	// HeartbeatInterval is the ping period; a client missing two
	// consecutive pongs is forcibly disconnected.
	HeartbeatInterval time.Duration
}

func Load() Config {
	cfg := Config{
		Port:                envOrDefault("ROOMSYNC_PORT", "8090"),
		LogLevel:            envOrDefault("ROOMSYNC_LOG_LEVEL", "info"),
		DatabaseURL:         envOrDefault("ROOMSYNC_DATABASE_URL", "file:roomsync.db"),
		MigrationsDir:       envOrDefault("ROOMSYNC_MIGRATIONS_DIR", "migrations"),
		RoomGrace:           DurationOrDefault(os.Getenv("ROOMSYNC_ROOM_GRACE"), time.Hour),
		TombstoneTTL:        DurationOrDefault(os.Getenv("ROOMSYNC_TOMBSTONE_TTL"), 24*time.Hour),
		TombstoneGCInterval: DurationOrDefault(os.Getenv("ROOMSYNC_TOMBSTONE_GC_INTERVAL"), time.Hour),
		RoomSweepInterval:   DurationOrDefault(os.Getenv("ROOMSYNC_ROOM_SWEEP_INTERVAL"), time.Minute),
		HeartbeatInterval:   DurationOrDefault(os.Getenv("ROOMSYNC_HEARTBEAT_INTERVAL"), 30*time.Second),
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func DurationOrDefault(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
