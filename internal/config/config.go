package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arko-chat/jsbridge/internal/credentials"
	"github.com/kelseyhightower/envconfig"
)

const (
	appName    = "jsbridge"
	configFile = "config.json"
	envPrefix  = "JSBRIDGE"
)

const (
	ModeWindow   = "window"
	ModeHeadless = "headless"
)

// Duration reads and writes as a time.ParseDuration string in both the
// config file and the environment.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Window struct {
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Debug  bool   `json:"debug"`
}

type Headless struct {
	EvalTimeout     Duration `json:"eval_timeout" split_words:"true"`
	FetchRetries    int      `json:"fetch_retries" split_words:"true"`
	FetchTimeout    Duration `json:"fetch_timeout" split_words:"true"`
	ScriptCacheSize int      `json:"script_cache_size" split_words:"true"`
	ScriptCacheTTL  Duration `json:"script_cache_ttl" split_words:"true"`
}

type Config struct {
	// Mode selects the scripting environment: ModeWindow or ModeHeadless.
	Mode string `json:"mode"`
	// StartURL is loaded at startup. Empty loads the bundled demo page.
	StartURL    string   `json:"start_url" split_words:"true"`
	Handlers    []string `json:"handlers"`
	Correlation string   `json:"correlation"`

	LogLevel  string `json:"log_level" split_words:"true"`
	LogFormat string `json:"log_format" split_words:"true"`

	DevtoolsAddr string `json:"devtools_addr" split_words:"true"`
	JournalLimit int    `json:"journal_limit" split_words:"true"`
	// OpenConsole opens the devtools console in the system browser at
	// startup.
	OpenConsole bool `json:"open_console" split_words:"true"`

	Window   Window   `json:"window"`
	Headless Headless `json:"headless"`

	DevtoolsToken  string `json:"-" split_words:"true"`
	CookieHashKey  []byte `json:"-" ignored:"true"`
	CookieBlockKey []byte `json:"-" ignored:"true"`
}

func Default() Config {
	return Config{
		Mode:         ModeWindow,
		Handlers:     []string{"host"},
		Correlation:  "name",
		LogLevel:     "info",
		LogFormat:    "text",
		DevtoolsAddr: "127.0.0.1:0",
		JournalLimit: 1000,
		Window: Window{
			Title:  "jsbridge",
			Width:  1040,
			Height: 768,
		},
		Headless: Headless{
			EvalTimeout:     Duration{5 * time.Second},
			FetchRetries:    2,
			FetchTimeout:    Duration{15 * time.Second},
			ScriptCacheSize: 64,
			ScriptCacheTTL:  Duration{10 * time.Minute},
		},
	}
}

// Load reads the config from the user config directory.
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(configDir, appName))
}

// LoadFrom reads appDir/config.json, writing one with defaults when it
// does not exist, then loads secrets from the keyring and applies
// JSBRIDGE_* environment overrides.
func LoadFrom(appDir string) (*Config, error) {
	path := filepath.Join(appDir, configFile)
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(appDir, 0700); err != nil {
			return nil, err
		}
		out, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(path, out, 0600); err != nil {
			return nil, err
		}
		slog.Info("generated new config", "path", path)
	default:
		return nil, err
	}

	if err := loadSecrets(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeWindow, ModeHeadless:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.JournalLimit < 0 {
		return fmt.Errorf("config: journal_limit must not be negative")
	}
	return nil
}

func loadSecrets(cfg *Config) error {
	token, err := credentials.EnsureAppSecret("devtools_token", 24)
	if err != nil {
		return err
	}
	cfg.DevtoolsToken = token

	hashKey, err := ensureKey("cookie_hash_key", 64)
	if err != nil {
		return err
	}
	blockKey, err := ensureKey("cookie_block_key", 32)
	if err != nil {
		return err
	}
	cfg.CookieHashKey = hashKey
	cfg.CookieBlockKey = blockKey
	return nil
}

func ensureKey(name string, size int) ([]byte, error) {
	val, err := credentials.EnsureAppSecret(name, size)
	if err != nil {
		return nil, err
	}
	key, err := base64.RawURLEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return key, nil
}
