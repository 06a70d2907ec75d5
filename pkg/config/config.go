package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
	_ "time/tzdata"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways"`
	Providers map[string]ProviderConfig `json:"providers"`
	Memory    MemoryConfig              `json:"memory"`
	Cleaning  CleaningConfig            `json:"cleaning"`
	Rewards   RewardsConfig             `json:"rewards"`
	Tools     ToolsConfig               `json:"tools"`
}

type AppConfig struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Prompts  string `json:"prompts"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// CleaningConfig tunes the session engine and the paused-session nudges.
type CleaningConfig struct {
	CatalogPath string   `json:"catalog_path,omitempty"`
	LockTimeout Duration `json:"lock_timeout"`
	BusyRetry   Duration `json:"busy_retry"`
	NudgeAfter  Duration `json:"nudge_after"`
	ContextTTL  Duration `json:"context_ttl"`
}

type RewardsConfig struct {
	QueueSize  int `json:"queue_size"`
	MaxRetries int `json:"max_retries"`
}

type ToolsConfig struct {
	SearchResults  int      `json:"search_results"`
	Headless       bool     `json:"headless"`
	BrowserTimeout Duration `json:"browser_timeout"`
}

// Duration reads Go duration strings such as "2s" or "4h".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads a JSON config file and fills in defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "homebot"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Local"
	}
	if c.App.Prompts == "" {
		c.App.Prompts = "./prompts"
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "homebot.db"
	}
	setDefault(&c.Cleaning.LockTimeout, 2*time.Second)
	setDefault(&c.Cleaning.BusyRetry, 300*time.Millisecond)
	setDefault(&c.Cleaning.NudgeAfter, 4*time.Hour)
	setDefault(&c.Cleaning.ContextTTL, 30*time.Minute)
	if c.Rewards.QueueSize <= 0 {
		c.Rewards.QueueSize = 64
	}
	if c.Rewards.MaxRetries <= 0 {
		c.Rewards.MaxRetries = 3
	}
	if c.Tools.SearchResults <= 0 {
		c.Tools.SearchResults = 5
	}
	setDefault(&c.Tools.BrowserTimeout, 30*time.Second)
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}

func (c *Config) Validate() error {
	if c.Memory.Type != "sqlite" {
		return fmt.Errorf("memory type %q is not supported", c.Memory.Type)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return nil
}

// Location resolves App.Timezone. Points days and monthly totals are cut in it.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
