package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string
	AuthBaseURL string

	// UserID pins the player's uid, bypassing sign-in. Meant for
	// development and tests.
	UserID string

	Digits         int
	AllowDuplicate bool
	MaxTurns       int

	HeartbeatPeriod   time.Duration
	PresenceThreshold time.Duration

	LobbyListLimit int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Digits:            4,
		AllowDuplicate:    false,
		MaxTurns:          0,
		HeartbeatPeriod:   10 * time.Second,
		PresenceThreshold: 30 * time.Second,
		LobbyListLimit:    10,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AuthBaseURL = strings.TrimSpace(os.Getenv("AUTH_BASE_URL"))
	cfg.UserID = strings.TrimSpace(os.Getenv("USER_ID"))

	if v := strings.TrimSpace(os.Getenv("GAME_DIGITS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Digits = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_ALLOW_DUPLICATE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowDuplicate = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_MAX_TURNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTurns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_PERIOD")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatPeriod = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("PRESENCE_THRESHOLD")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PresenceThreshold = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOBBY_LIST_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LobbyListLimit = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
