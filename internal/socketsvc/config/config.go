package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port      string
	RateLimit int
	JWTSecret string
	NatsURL   string
	NatsToken string
}

func Load() (Config, error) {
	cfg := Config{
		Port:      os.Getenv("SOCKET_SERVICE_PORT"),
		JWTSecret: os.Getenv("JWT_SECRET_KEY"),
		NatsURL:   os.Getenv("NATS_URL"),
		NatsToken: os.Getenv("NATS_TOKEN"),
		RateLimit: 100,
	}
	if cfg.Port == "" {
		cfg.Port = "8081"
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT value %q: %w", v, err)
		}
		cfg.RateLimit = n
	}
	return cfg, nil
}
