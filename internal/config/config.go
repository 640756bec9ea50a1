package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Remote   RemoteConfig   `toml:"remote"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Board    BoardConfig    `toml:"board"`
}

// RemoteConfig locates the Dataverse-style organization API.
type RemoteConfig struct {
	BaseURL    string `toml:"base_url"`
	APIVersion string `toml:"api_version"`
	EntitySet  string `toml:"entity_set"`
}

// AuthConfig carries the OAuth application registration.
type AuthConfig struct {
	Authority string   `toml:"authority"`
	TenantID  string   `toml:"tenant_id"`
	ClientID  string   `toml:"client_id"`
	Scopes    []string `toml:"scopes"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string `toml:"level"`    // debug | info | warn | error
	DevFile string `toml:"dev_file"` // logfmt sink, empty disables
}

type BoardConfig struct {
	ShowCounts     bool `toml:"show_counts"`
	ShowTimestamps bool `toml:"show_timestamps"`
}

func Default(dbPath string) Config {
	return Config{
		Remote: RemoteConfig{
			APIVersion: "v9.2",
			EntitySet:  "ycn_leads",
		},
		Auth: AuthConfig{
			Authority: "https://login.microsoftonline.com",
			TenantID:  "common",
		},
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Board: BoardConfig{
			ShowCounts:     true,
			ShowTimestamps: false,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	cfg.applyDefaults(defaults)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyDefaults refills fields a sparse config file left empty.
func (c *Config) applyDefaults(defaults Config) {
	if strings.TrimSpace(c.Remote.APIVersion) == "" {
		c.Remote.APIVersion = defaults.Remote.APIVersion
	}
	if strings.TrimSpace(c.Remote.EntitySet) == "" {
		c.Remote.EntitySet = defaults.Remote.EntitySet
	}
	if strings.TrimSpace(c.Auth.Authority) == "" {
		c.Auth.Authority = defaults.Auth.Authority
	}
	if strings.TrimSpace(c.Auth.TenantID) == "" {
		c.Auth.TenantID = defaults.Auth.TenantID
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = defaults.Database.Path
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.Remote.BaseURL)
	if base == "" {
		return errors.New("remote.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return fmt.Errorf("invalid remote.base_url: %q", c.Remote.BaseURL)
	}

	if strings.TrimSpace(c.Auth.ClientID) == "" {
		return errors.New("auth.client_id is required")
	}
	if strings.TrimSpace(c.Auth.Authority) == "" {
		return errors.New("auth.authority is required")
	}
	if strings.TrimSpace(c.Auth.TenantID) == "" {
		return errors.New("auth.tenant_id is required")
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// ResourceScopes returns the configured token scopes, defaulting to the
// remote organization's .default scope.
func (c Config) ResourceScopes() []string {
	scopes := make([]string, 0, len(c.Auth.Scopes))
	for _, scope := range c.Auth.Scopes {
		if s := strings.TrimSpace(scope); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) > 0 {
		return scopes
	}
	return []string{strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/") + "/.default"}
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
