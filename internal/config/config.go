package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	UserAPIBaseURL string
	UserAPIToken   string

	RedisURL    string
	DatabaseURL string

	MsgTemplateDir string

	QuestionsPerMatch    int
	RoundTimeLimitMs     int
	ResultDisplayMs      int
	MaxConcurrentBattles int

	AllowedOrigins []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:           ":8090",
		QuestionsPerMatch:    5,
		RoundTimeLimitMs:     15000,
		ResultDisplayMs:      3000,
		MaxConcurrentBattles: 500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.UserAPIBaseURL = strings.TrimSpace(os.Getenv("USER_API_BASE_URL"))
	cfg.UserAPIToken = strings.TrimSpace(os.Getenv("USER_API_TOKEN"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("QUESTIONS_PER_MATCH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QuestionsPerMatch = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROUND_TIME_LIMIT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RoundTimeLimitMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RESULT_DISPLAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResultDisplayMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_BATTLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentBattles = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			s := strings.TrimSpace(p)
			if s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.UserAPIBaseURL == "" {
		return nil, errors.New("USER_API_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
