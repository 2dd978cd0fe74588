package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all the configuration settings for the client.
type Config struct {
	ServerURL string
	// MapURL is the page shown in the map view. Empty means ServerURL.
	MapURL string
	APIKey string

	Port int
	Env  string

	StorageBackend string
	DataDir        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string

	SentryDSN string
	LogLevel  string
	LogFormat string

	PollInterval   time.Duration
	MapFreshness   time.Duration
	MapCooldown    time.Duration
	FollowPause    time.Duration
	TapThresholdM  float64
	RateLimit      int
	Location       bool
	MessageChannel string
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Port:           4000,
		Env:            "development",
		StorageBackend: "file",
		DataDir:        "data",
		RedisAddr:      "localhost:6379",
		RedisPrefix:    "gnet:",
		LogLevel:       "info",
		LogFormat:      "text",
		PollInterval:   30 * time.Second,
		MapFreshness:   7 * 24 * time.Hour,
		MapCooldown:    time.Hour,
		FollowPause:    12 * time.Second,
		TapThresholdM:  50,
		RateLimit:      5,
		Location:       true,
		MessageChannel: "ReactNativeWebView",
	}
}

// MapPageURL returns the map page location.
func (cfg *Config) MapPageURL() string {
	if cfg.MapURL != "" {
		return cfg.MapURL
	}
	return cfg.ServerURL
}

// Validate rejects configurations the client cannot start with.
func (cfg *Config) Validate() error {
	if err := validateURL("server URL", cfg.ServerURL); err != nil {
		return err
	}
	if cfg.MapURL != "" {
		if err := validateURL("map URL", cfg.MapURL); err != nil {
			return err
		}
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	switch cfg.StorageBackend {
	case "file":
		if cfg.DataDir == "" {
			return fmt.Errorf("data directory is required for the file storage backend")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want file or redis)", cfg.StorageBackend)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	for name, d := range map[string]time.Duration{
		"poll interval": cfg.PollInterval,
		"map freshness": cfg.MapFreshness,
		"map cooldown":  cfg.MapCooldown,
		"follow pause":  cfg.FollowPause,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if cfg.TapThresholdM <= 0 {
		return fmt.Errorf("tap threshold must be positive, got %v", cfg.TapThresholdM)
	}
	if cfg.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit)
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	return nil
}
