/*
Package configs is responsible for loading and parsing the client's configuration settings.

Settings come from CHAT_* environment variables, optionally layered over a chatsync.yaml
file, and cover the running environment, the backend endpoints, the token file, the
reconnect and typing timings, and the optional login or sign-up credentials.
*/
package configs

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CHAT_API_URL.
const EnvPrefix = "CHAT"

// ConfigName is the optional config file name, without extension.
const ConfigName = "chatsync"

// AppConfig contains all configuration parameters required for the client to run.
type AppConfig struct {
	// General Settings
	Environment string `mapstructure:"environment"`

	// Backend Endpoints
	APIURL string `mapstructure:"api_url"`
	WSURL  string `mapstructure:"ws_url"`

	// Session Settings
	// TokenFile is the session file path; empty selects the user config dir.
	TokenFile string `mapstructure:"token_file"`
	Email     string `mapstructure:"email"`
	Password  string `mapstructure:"password"`

	// Username, when set, registers a new account with Email and Password
	// instead of logging in.
	Username string `mapstructure:"username"`

	// Timing Settings
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	TypingInterval time.Duration `mapstructure:"typing_interval"`
	TypingIdle     time.Duration `mapstructure:"typing_idle"`

	// HTTPTimeout bounds each REST call; zero means no timeout.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

var defaults = map[string]any{
	"environment":     "development",
	"api_url":         "http://localhost:8000/api",
	"ws_url":          "ws://localhost:8000/ws",
	"token_file":      "",
	"email":           "",
	"password":        "",
	"username":        "",
	"reconnect_delay": 5 * time.Second,
	"typing_interval": time.Second,
	"typing_idle":     3 * time.Second,
	"http_timeout":    0,
}

// LoadConfig reads the configuration. A chatsync.yaml found in one of searchPaths
// (default: the working directory) is read first; environment variables override it.
// A missing file is not an error. The result is validated before it is returned.
func LoadConfig(searchPaths ...string) (*AppConfig, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	c.WSURL = strings.TrimSpace(c.WSURL)
	c.TokenFile = strings.TrimSpace(c.TokenFile)
	c.Email = strings.TrimSpace(c.Email)
	c.Username = strings.TrimSpace(c.Username)
}

func (c *AppConfig) validate() error {
	if !slices.Contains([]string{"development", "production"}, c.Environment) {
		return fmt.Errorf("invalid %s_ENVIRONMENT %q: must be development or production", EnvPrefix, c.Environment)
	}

	if err := checkURL("API_URL", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("WS_URL", c.WSURL, "ws", "wss"); err != nil {
		return err
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%s_RECONNECT_DELAY must be positive, got %s", EnvPrefix, c.ReconnectDelay)
	}
	if c.TypingInterval <= 0 {
		return fmt.Errorf("%s_TYPING_INTERVAL must be positive, got %s", EnvPrefix, c.TypingInterval)
	}
	if c.TypingIdle <= 0 {
		return fmt.Errorf("%s_TYPING_IDLE must be positive, got %s", EnvPrefix, c.TypingIdle)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%s_HTTP_TIMEOUT must not be negative, got %s", EnvPrefix, c.HTTPTimeout)
	}

	if (c.Email == "") != (c.Password == "") {
		return fmt.Errorf("%s_EMAIL and %s_PASSWORD must be set together", EnvPrefix, EnvPrefix)
	}
	if c.Username != "" && c.Email == "" {
		return fmt.Errorf("%s_USERNAME requires %s_EMAIL and %s_PASSWORD", EnvPrefix, EnvPrefix, EnvPrefix)
	}

	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s_%s: %w", EnvPrefix, name, err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("invalid %s_%s %q: expected %s URL with a host", EnvPrefix, name, raw, strings.Join(schemes, " or "))
	}
	return nil
}
