// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/game"
)

// Config carries everything the process needs to start.
type Config struct {
	ListenAddr  string
	RedisAddr   string
	DatabaseURL string
	JWTSecret   string

	Rules game.Rules
}

// Load reads the environment (plus .env if present) and applies overrides on
// top of the default game rules. Missing infra endpoints are allowed; the
// corresponding sinks simply stay disabled.
func Load(log *logrus.Logger) Config {
	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment from .env")
	}

	rules := game.DefaultRules()
	rules.MinPlayers = envInt("MIN_PLAYERS", rules.MinPlayers)
	rules.MaxPlayers = envInt("MAX_PLAYERS", rules.MaxPlayers)
	rules.StartingBalance = envInt("STARTING_BALANCE", rules.StartingBalance)
	rules.SkipBudget = envInt("SKIP_BUDGET", rules.SkipBudget)
	rules.CollectionCap = envInt("COLLECTION_CAP", rules.CollectionCap)
	rules.TurnSeconds = envInt("TURN_SECONDS", rules.TurnSeconds)
	rules.PreviewSeconds = envInt("PREVIEW_SECONDS", rules.PreviewSeconds)
	rules.ConfirmSeconds = envInt("CONFIRM_SECONDS", rules.ConfirmSeconds)
	rules.RestartSeconds = envInt("RESTART_SECONDS", rules.RestartSeconds)

	return Config{
		ListenAddr:  envStr("SERVER_ADDR", ":8080"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   envStr("JWT_SECRET", "insecure-dev-secret"),
		Rules:       rules,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
