package config

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Chat     ChatConfig     `envPrefix:"CHAT_"`
	Ingest   IngestConfig   `envPrefix:"INGEST_"`
	Push     PushConfig     `envPrefix:"PUSH_"`
}

type ServerConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`
}

type DatabaseConfig struct {
	Hosts    []string `env:"HOSTS" envDefault:"localhost:27017"`
	Username string   `env:"USERNAME"`
	Password string   `env:"PASSWORD"`
	Database string   `env:"DATABASE" envDefault:"chatcore"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

type ChatConfig struct {
	TrustedGifDomains []string `env:"TRUSTED_GIF_DOMAINS" envDefault:"giphy.com,tenor.com"`
}

type IngestConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"message.sent"`
	GroupID string   `env:"GROUP_ID" envDefault:"chat-core"`
}

type PushConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	BaseURL string `env:"BASE_URL"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
