package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
)

const (
	DefaultDeviceIP = "192.168.168.191"
	// LegacyDeviceHost is the LAN address baked into the older direct-IP
	// pages. It is only used when device.profile is "legacy".
	LegacyDeviceHost = "192.168.178.111"
)

type Config struct {
	Device  DeviceConfig  `json:"device"`
	HTTP    HTTPConfig    `json:"http"`
	Bridge  BridgeConfig  `json:"bridge"`
	Offline OfflineConfig `json:"offline"`
	Relay   RelayConfig   `json:"relay"`
	Store   StoreConfig   `json:"store"`
	Debug   DebugConfig   `json:"debug"`
}

type DeviceConfig struct {
	DefaultIP  string `json:"default_ip" env:"PANEL_DEVICE_DEFAULT_IP"`
	Profile    string `json:"profile" env:"PANEL_DEVICE_PROFILE"`
	LegacyHost string `json:"legacy_host" env:"PANEL_DEVICE_LEGACY_HOST"`
}

type HTTPConfig struct {
	TimeoutSeconds   int `json:"timeout_seconds" env:"PANEL_HTTP_TIMEOUT_SECONDS"`
	RetryAttempts    int `json:"retry_attempts" env:"PANEL_HTTP_RETRY_ATTEMPTS"`
	RetryDelayMillis int `json:"retry_delay_millis" env:"PANEL_HTTP_RETRY_DELAY_MILLIS"`
}

type BridgeConfig struct {
	Enabled        bool   `json:"enabled" env:"PANEL_BRIDGE_ENABLED"`
	ParentURL      string `json:"parent_url" env:"PANEL_BRIDGE_PARENT_URL"`
	Referrer       string `json:"referrer" env:"PANEL_BRIDGE_REFERRER"`
	TargetOrigin   string `json:"target_origin" env:"PANEL_BRIDGE_TARGET_ORIGIN"`
	AuthToken      string `json:"auth_token" env:"PANEL_BRIDGE_AUTH_TOKEN"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"PANEL_BRIDGE_TIMEOUT_SECONDS"`
}

type OfflineConfig struct {
	Enabled              bool     `json:"enabled" env:"PANEL_OFFLINE_ENABLED"`
	ListenAddr           string   `json:"listen_addr" env:"PANEL_OFFLINE_LISTEN_ADDR"`
	Version              string   `json:"version" env:"PANEL_OFFLINE_VERSION"`
	CachePrefix          string   `json:"cache_prefix"`
	AssetOrigin          string   `json:"asset_origin" env:"PANEL_OFFLINE_ASSET_ORIGIN"`
	APITimeoutSeconds    int      `json:"api_timeout_seconds"`
	MaxEntryBytes        int64    `json:"max_entry_bytes"`
	Precache             []string `json:"precache"`
	SkipWaitingOnInstall bool     `json:"skip_waiting_on_install"`
}

type RelayConfig struct {
	Enabled       bool   `json:"enabled" env:"PANEL_RELAY_ENABLED"`
	Path          string `json:"path"`
	AuthToken     string `json:"auth_token" env:"PANEL_RELAY_AUTH_TOKEN"`
	AllowedOrigin string `json:"allowed_origin" env:"PANEL_RELAY_ALLOWED_ORIGIN"`
}

type StoreConfig struct {
	RedisAddr string `json:"redis_addr" env:"REDIS_ADDR"`
	FilePath  string `json:"file_path" env:"PANEL_STATE_FILE"`
}

type DebugConfig struct {
	Verbose      bool `json:"verbose" env:"PANEL_DEBUG"`
	MeasureCalls bool `json:"measure_calls" env:"PANEL_MEASURE_CALLS"`
	LogErrors    bool `json:"log_errors"`
}

func Default() Config {
	return Config{
		Device: DeviceConfig{
			DefaultIP: DefaultDeviceIP,
			Profile:   "configurable",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds:   10,
			RetryAttempts:    3,
			RetryDelayMillis: 1000,
		},
		Bridge: BridgeConfig{
			TargetOrigin:   "*",
			TimeoutSeconds: 10,
		},
		Offline: OfflineConfig{
			Enabled:              true,
			ListenAddr:           ":8090",
			Version:              "2.0.0",
			CachePrefix:          "awtrix3",
			APITimeoutSeconds:    5,
			MaxEntryBytes:        1 << 20,
			Precache:             defaultPrecache(),
			SkipWaitingOnInstall: true,
		},
		Relay: RelayConfig{
			Enabled:       true,
			Path:          "/ws/bridge",
			AllowedOrigin: "*",
		},
		Debug: DebugConfig{
			LogErrors: true,
		},
	}
}

func defaultPrecache() []string {
	return []string{
		"/",
		"/index.html",
		"/manifest.json",
		"/css/modern-style.css",
		"/css/components.css",
		"/js/script.js",
		"/js/config.js",
		"/js/utils.js",
		"/js/api-service.js",
		"/js/dashboard.js",
		"/pages/dashboard.html",
	}
}

// Load reads a JSON-with-comments file on top of Default, then applies
// PANEL_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		if err := Parse(content, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env failed: %w", err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

// Parse decodes a hujson document into cfg.
func Parse(content []byte, cfg *Config) error {
	standard, err := hujson.Standardize(content)
	if err != nil {
		return fmt.Errorf("parse config failed: %w", err)
	}
	if err := json.Unmarshal(standard, cfg); err != nil {
		return fmt.Errorf("parse config failed: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Device.DefaultIP == "" {
		c.Device.DefaultIP = def.Device.DefaultIP
	}
	if c.Device.Profile == "legacy" && c.Device.LegacyHost == "" {
		c.Device.LegacyHost = LegacyDeviceHost
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = def.HTTP.TimeoutSeconds
	}
	if c.HTTP.RetryAttempts <= 0 {
		c.HTTP.RetryAttempts = def.HTTP.RetryAttempts
	}
	if c.HTTP.RetryDelayMillis <= 0 {
		c.HTTP.RetryDelayMillis = def.HTTP.RetryDelayMillis
	}
	if c.Bridge.TimeoutSeconds <= 0 {
		c.Bridge.TimeoutSeconds = c.HTTP.TimeoutSeconds
	}
	if c.Bridge.TargetOrigin == "" {
		c.Bridge.TargetOrigin = "*"
	}
	if c.Offline.ListenAddr == "" {
		c.Offline.ListenAddr = def.Offline.ListenAddr
	}
	if c.Offline.Version == "" {
		c.Offline.Version = def.Offline.Version
	}
	if c.Offline.CachePrefix == "" {
		c.Offline.CachePrefix = def.Offline.CachePrefix
	}
	if c.Offline.APITimeoutSeconds <= 0 {
		c.Offline.APITimeoutSeconds = def.Offline.APITimeoutSeconds
	}
	if c.Offline.MaxEntryBytes <= 0 {
		c.Offline.MaxEntryBytes = def.Offline.MaxEntryBytes
	}
	if c.Relay.Path == "" {
		c.Relay.Path = def.Relay.Path
	}
	if c.Relay.AllowedOrigin == "" {
		c.Relay.AllowedOrigin = "*"
	}
}

func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c HTTPConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

func (c BridgeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c OfflineConfig) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// FallbackHost is the host used when nothing valid has been stored.
func (c DeviceConfig) FallbackHost() string {
	if c.Profile == "legacy" && c.LegacyHost != "" {
		return c.LegacyHost
	}
	return c.DefaultIP
}
