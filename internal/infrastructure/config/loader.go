package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Host        string
	Port        string
	DatabaseURL string

	TwitchClient   string
	TwitchSecret   string
	TwitchRedirect string
	TwitchScopes   string

	StreamlabsClient   string
	StreamlabsSecret   string
	StreamlabsRedirect string
	StreamlabsScopes   string

	// ClientVersion vacío desactiva el aviso de versión.
	ClientVersion string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getenv("HOST", "127.0.0.1"),
		Port:               getenv("PORT", "3000"),
		DatabaseURL:        getenv("DATABASE_URL", "./db.sqlite"),
		TwitchClient:       os.Getenv("TWITCH_CLIENT"),
		TwitchSecret:       os.Getenv("TWITCH_SECRET"),
		TwitchRedirect:     os.Getenv("TWITCH_REDIRECT"),
		TwitchScopes:       os.Getenv("TWITCH_SCOPES"),
		StreamlabsClient:   os.Getenv("STREAMLABS_CLIENT"),
		StreamlabsSecret:   os.Getenv("STREAMLABS_SECRET"),
		StreamlabsRedirect: os.Getenv("STREAMLABS_REDIRECT"),
		StreamlabsScopes:   os.Getenv("STREAMLABS_SCOPES"),
		ClientVersion:      os.Getenv("CLIENT_VERSION"),
	}

	var missing []string
	for _, v := range []struct{ name, value string }{
		{"TWITCH_CLIENT", cfg.TwitchClient},
		{"TWITCH_SECRET", cfg.TwitchSecret},
		{"TWITCH_REDIRECT", cfg.TwitchRedirect},
		{"TWITCH_SCOPES", cfg.TwitchScopes},
		{"STREAMLABS_CLIENT", cfg.StreamlabsClient},
		{"STREAMLABS_SECRET", cfg.StreamlabsSecret},
		{"STREAMLABS_REDIRECT", cfg.StreamlabsRedirect},
		{"STREAMLABS_SCOPES", cfg.StreamlabsScopes},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required env vars: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// Addr is the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
