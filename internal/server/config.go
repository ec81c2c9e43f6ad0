package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/xr25-dash/internal/capture"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/xr25dash/config.yaml"

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	Settings `yaml:",inline"`

	path string // file path for save/load
}

// Settings are the persisted configuration values.
type Settings struct {
	// Byte source and dialect
	ECU ECUConfig `yaml:"ecu" json:"ecu"`

	// Display preferences
	Display DisplayConfig `yaml:"display" json:"display"`

	// CSV logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Raw frame recording
	Capture capture.Config `yaml:"capture" json:"capture"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`
}

type ECUConfig struct {
	Type           string `yaml:"type" json:"type"`          // "serial", "demo" or "replay"
	PortPath       string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate       int    `yaml:"baud_rate" json:"baudRate"`
	Decoder        string `yaml:"decoder" json:"decoder"` // registry name, e.g. "Fenix3"
	ReplayPath     string `yaml:"replay_path" json:"replayPath"`
	ReplayRealtime bool   `yaml:"replay_realtime" json:"replayRealtime"`
}

type DisplayConfig struct {
	Thresholds  sample.Thresholds `yaml:"thresholds" json:"thresholds"`
	HistorySize int               `yaml:"history_size" json:"historySize"` // samples per plot, power of two
	PageHz      int               `yaml:"page_hz" json:"pageHz"`           // frame + plot refresh
	HeaderHz    int               `yaml:"header_hz" json:"headerHz"`       // stats refresh
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{Settings: Settings{
		ECU: ECUConfig{
			Type:     "demo",
			PortPath: "/dev/ttyUSB0",
			BaudRate: 62500,
			Decoder:  "Fenix3",
		},
		Display: DisplayConfig{
			Thresholds:  sample.DefaultThresholds(),
			HistorySize: sample.DefaultCapacity,
			PageHz:      16,
			HeaderHz:    1,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/xr25dash",
			Interval: 100,
		},
		Capture: capture.Config{
			Enabled: false,
			Path:    "/var/lib/xr25dash/captures",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envBool(v string) bool { return v == "1" || v == "true" || v == "yes" }

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: ECU_TYPE, ECU_PORT, ECU_BAUD, ECU_DECODER, REPLAY_PATH,
// LISTEN_ADDR, LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS, CAPTURE_ENABLED,
// CAPTURE_PATH, HISTORY_SIZE
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ECU_TYPE"); v != "" {
		c.ECU.Type = v
	}
	if v := os.Getenv("ECU_PORT"); v != "" {
		c.ECU.PortPath = v
	}
	if v := os.Getenv("ECU_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ECU.BaudRate = n
		}
	}
	if v := os.Getenv("ECU_DECODER"); v != "" {
		c.ECU.Decoder = v
	}
	if v := os.Getenv("REPLAY_PATH"); v != "" {
		c.ECU.ReplayPath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = envBool(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
	// Capture
	if v := os.Getenv("CAPTURE_ENABLED"); v != "" {
		c.Capture.Enabled = envBool(v)
	}
	if v := os.Getenv("CAPTURE_PATH"); v != "" {
		c.Capture.Path = v
	}
	if v := os.Getenv("HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Display.HistorySize = n
		}
	}
}

// Snapshot returns a copy of the current settings.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Path returns the file the config is saved to.
func (c *Config) Path() string { return c.path }

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = DefaultConfigPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port paths, baud rates, logging).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal back into the config struct
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
