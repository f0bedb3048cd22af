package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	Port                  string
	Env                   string
	DatabaseDSN           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	JWTSecret             string
	AccessTokenTTLMinutes int
	TelegramBotToken      string
	DedupeTTL             time.Duration
	PresenceTTL           time.Duration
	RateLimitRPS          float64
	RateLimitBurst        int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Load reads the configuration. Invalid numeric values fall back to defaults.
func Load() Config {
	rps, err := strconv.ParseFloat(getenv("RATE_LIMIT_RPS", "20"), 64)
	if err != nil || rps <= 0 {
		rps = 20
	}
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		Env:                   getenv("APP_ENV", "dev"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=user password=password dbname=adoptchat port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:             getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getint("REDIS_DB", 0),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 60),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		DedupeTTL:             time.Duration(getint("NOTIFY_DEDUPE_TTL_MINUTES", int(DefaultDedupeTTL/time.Minute))) * time.Minute,
		PresenceTTL:           time.Duration(getint("PRESENCE_TTL_SECONDS", int(DefaultPresenceTTL/time.Second))) * time.Second,
		RateLimitRPS:          rps,
		RateLimitBurst:        getint("RATE_LIMIT_BURST", 40),
	}
}
