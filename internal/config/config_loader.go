package config

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"mapclient.gnet.app/internal/report"
)

// setting binds one configuration field to a flag name (also its key in
// JSON config files) and an environment variable.
type setting struct {
	name  string
	env   string
	usage string
	set   func(cfg *Config, v string) error
}

func stringSetting(name, env, usage string, field func(*Config) *string) setting {
	return setting{name, env, usage, func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func intSetting(name, env, usage string, field func(*Config) *int) setting {
	return setting{name, env, usage, func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field(cfg) = n
		return nil
	}}
}

func floatSetting(name, env, usage string, field func(*Config) *float64) setting {
	return setting{name, env, usage, func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field(cfg) = f
		return nil
	}}
}

func boolSetting(name, env, usage string, field func(*Config) *bool) setting {
	return setting{name, env, usage, func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field(cfg) = b
		return nil
	}}
}

func durationSetting(name, env, usage string, field func(*Config) *time.Duration) setting {
	return setting{name, env, usage, func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field(cfg) = d
		return nil
	}}
}

var settings = []setting{
	stringSetting("server-url", "GNET_SERVER_URL", "Base URL of the point service", func(c *Config) *string { return &c.ServerURL }),
	stringSetting("map-url", "GNET_MAP_URL", "URL of the map page (defaults to the server URL)", func(c *Config) *string { return &c.MapURL }),
	stringSetting("api-key", "GNET_API_KEY", "Shared secret sent as x-api-key", func(c *Config) *string { return &c.APIKey }),
	intSetting("port", "PORT", "Local HTTP API port", func(c *Config) *int { return &c.Port }),
	stringSetting("env", "ENV", "Environment (development|staging|production)", func(c *Config) *string { return &c.Env }),
	stringSetting("storage", "STORAGE_BACKEND", "Persistence backend (file|redis)", func(c *Config) *string { return &c.StorageBackend }),
	stringSetting("data-dir", "GNET_DATA_DIR", "Directory for the file storage backend", func(c *Config) *string { return &c.DataDir }),
	stringSetting("redis-addr", "REDIS_ADDR", "Redis address for the redis storage backend", func(c *Config) *string { return &c.RedisAddr }),
	stringSetting("redis-password", "REDIS_PASSWORD", "Redis password", func(c *Config) *string { return &c.RedisPassword }),
	intSetting("redis-db", "REDIS_DB", "Redis database number", func(c *Config) *int { return &c.RedisDB }),
	stringSetting("redis-prefix", "REDIS_PREFIX", "Prefix for redis keys", func(c *Config) *string { return &c.RedisPrefix }),
	stringSetting("sentry-dsn", "SENTRY_DSN", "Sentry DSN (empty disables reporting)", func(c *Config) *string { return &c.SentryDSN }),
	stringSetting("log-level", "LOG_LEVEL", "Log level (debug|info|warn|error)", func(c *Config) *string { return &c.LogLevel }),
	stringSetting("log-format", "LOG_FORMAT", "Log format (text|json)", func(c *Config) *string { return &c.LogFormat }),
	durationSetting("poll-interval", "GNET_POLL_INTERVAL", "Connectivity check interval", func(c *Config) *time.Duration { return &c.PollInterval }),
	durationSetting("map-freshness", "GNET_MAP_FRESHNESS", "Age after which the cached map is stale", func(c *Config) *time.Duration { return &c.MapFreshness }),
	durationSetting("map-cooldown", "GNET_MAP_COOLDOWN", "Minimum time between startup map refreshes", func(c *Config) *time.Duration { return &c.MapCooldown }),
	durationSetting("follow-pause", "GNET_FOLLOW_PAUSE", "How long the camera stops following after an interaction", func(c *Config) *time.Duration { return &c.FollowPause }),
	floatSetting("tap-threshold", "GNET_TAP_THRESHOLD_METERS", "Largest tap distance in meters that selects a point", func(c *Config) *float64 { return &c.TapThresholdM }),
	intSetting("rate-limit", "GNET_RATE_LIMIT", "Requests per second to the point service", func(c *Config) *int { return &c.RateLimit }),
	boolSetting("location", "LOCATION_ENABLED", "Grant location permission to the pushed position source", func(c *Config) *bool { return &c.Location }),
	stringSetting("message-channel", "GNET_MESSAGE_CHANNEL", "Window object the map page posts messages to", func(c *Config) *string { return &c.MessageChannel }),
}

// ValidateConfigFlags ensures at most one configuration source is specified
// and that no stray positional arguments were given.
func ValidateConfigFlags(configFile, configURL string, args []string) error {
	if configFile != "" && configURL != "" {
		return fmt.Errorf("only one of --config-file or --config-url can be specified")
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return nil
}

// Loader builds a Config from, in increasing precedence: defaults, a JSON
// config file or remote URL, the environment (including a .env file) and
// command line flags.
type Loader struct {
	Getenv     func(string) string
	Client     *http.Client
	MaxRetries int
}

// Load parses args (without the program name) and returns a validated Config.
func Load(ctx context.Context, args []string) (*Config, error) {
	l := Loader{Getenv: os.Getenv, Client: &http.Client{Timeout: 10 * time.Second}, MaxRetries: 3}
	return l.Load(ctx, args)
}

func (l Loader) Load(ctx context.Context, args []string) (*Config, error) {
	fset := flag.NewFlagSet("mapclient", flag.ContinueOnError)
	values := make(map[string]*string, len(settings))
	for _, s := range settings {
		values[s.name] = fset.String(s.name, "", s.usage+" (env "+s.env+")")
	}
	configFile := fset.String("config-file", "", "Path to a local JSON configuration file")
	configURL := fset.String("config-url", "", "URL to a remote JSON configuration file")
	envFile := fset.String("env-file", ".env", "Path to a .env file")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if err := ValidateConfigFlags(*configFile, *configURL, fset.Args()); err != nil {
		return nil, err
	}

	cfg := Default()

	var raw map[string]any
	var err error
	switch {
	case *configFile != "":
		raw, err = loadConfigFromFile(*configFile)
	case *configURL != "":
		raw, err = loadConfigFromURL(ctx, l.Client, *configURL, l.getenv("CONFIG_AUTH_USER"), l.getenv("CONFIG_AUTH_PASS"), l.MaxRetries)
	}
	if err != nil {
		return nil, err
	}
	if err := applyJSON(&cfg, raw); err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(*envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", *envFile, err)
	}
	for _, s := range settings {
		v := l.getenv(s.env)
		if v == "" {
			v = dotenv[s.env]
		}
		if v == "" {
			continue
		}
		if err := s.set(&cfg, v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", s.env, err)
		}
	}

	var flagErr error
	fset.Visit(func(f *flag.Flag) {
		for _, s := range settings {
			if s.name == f.Name && flagErr == nil {
				flagErr = s.set(&cfg, *values[s.name])
			}
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l Loader) getenv(key string) string {
	if l.Getenv == nil {
		return ""
	}
	return l.Getenv(key)
}

func applyJSON(cfg *Config, raw map[string]any) error {
	for key, v := range raw {
		found := false
		for _, s := range settings {
			if s.name != key {
				continue
			}
			found = true
			if err := s.set(cfg, fmt.Sprint(v)); err != nil {
				return fmt.Errorf("invalid config value: %w", err)
			}
		}
		if !found {
			return fmt.Errorf("unknown config key %q", key)
		}
	}
	return nil
}

// loadConfigFromFile reads a JSON object whose keys are flag names.
func loadConfigFromFile(filePath string) (map[string]any, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("config", "file_path", filePath),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("config", "file_path", filePath),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return raw, nil
}

// loadConfigFromURL fetches the same JSON object from a remote endpoint,
// using optional basic authentication.
func loadConfigFromURL(ctx context.Context, client *http.Client, url, authUser, authPass string, maxRetries int) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authUser != "" && authPass != "" {
		req.SetBasicAuth(authUser, authPass)
	}

	resp, err := DoWithBackoff(ctx, client, req, maxRetries)
	if err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("config", "config_url", url),
			Level: sentry.LevelError,
		})
		return nil, fmt.Errorf("failed to fetch remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("remote config returned status: %d", resp.StatusCode)
		report.ReportErrorWithSentryOptions(statusErr, report.SentryReportOptions{
			Tags:  report.Component("config", "config_url", url),
			Level: sentry.LevelError,
		})
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote config: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return raw, nil
}
