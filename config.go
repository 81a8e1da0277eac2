package sudhar

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/sudhar-ne/sudhar/default"
	"github.com/sudhar-ne/sudhar/model"
)

// Config represents the sudhar configuration.
type Config struct {
	Version    int                    `toml:"version" json:"version"`
	Backend    BackendConfig          `toml:"backend" json:"backend"`
	Generation GenerationConfig       `toml:"generation" json:"generation"`
	Cache      CacheConfig            `toml:"cache" json:"cache"`
	Models     map[string]ModelConfig `toml:"models" json:"models"`
}

// BackendConfig holds settings for the inference backend.
type BackendConfig struct {
	BaseURL          string `toml:"base_url" json:"base_url"`
	APIKey           string `toml:"api_key" json:"api_key"`
	TimeoutSeconds   int    `toml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	LoadAttempts     int    `toml:"load_attempts,omitempty" json:"load_attempts,omitempty"`
	LoadRetryDelayMS int    `toml:"load_retry_delay_ms,omitempty" json:"load_retry_delay_ms,omitempty"`
	VerifyLocal      *bool  `toml:"verify_local,omitempty" json:"verify_local,omitempty"`
}

// GenerationConfig holds beam-search parameters shared by every model.
type GenerationConfig struct {
	Instruction        string `toml:"instruction" json:"instruction"`
	MaxLength          int    `toml:"max_length,omitempty" json:"max_length,omitempty"`
	NumBeams           int    `toml:"num_beams,omitempty" json:"num_beams,omitempty"`
	NumReturnSequences int    `toml:"num_return_sequences,omitempty" json:"num_return_sequences,omitempty"`
}

// CacheConfig controls how long loaded models stay resident.
type CacheConfig struct {
	TTLMinutes int `toml:"ttl_minutes,omitempty" json:"ttl_minutes,omitempty"`
	Capacity   int `toml:"capacity,omitempty" json:"capacity,omitempty"`
}

// ModelConfig locates one pretrained model directory.
type ModelConfig struct {
	Path string `toml:"path" json:"path"`
}

// ConfigDir returns the config directory path.
// Resolution order: $SUDHAR_CONFIG_DIR > $XDG_CONFIG_HOME/sudhar > ~/.config/sudhar
func ConfigDir() string {
	if dir := os.Getenv("SUDHAR_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "sudhar")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "sudhar-config")
	}
	return filepath.Join(home, ".config", "sudhar")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(string(defaults.DefaultConfigTOML), &cfg); err != nil {
		panic("sudhar: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads config from path, filling missing fields with defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	instruction := cfg.Generation.Instruction
	applyDefaults(&cfg, DefaultConfig())
	// instruction = "" sends the text without a prefix.
	if md.IsDefined("generation", "instruction") {
		cfg.Generation.Instruction = instruction
	}
	return &cfg, nil
}

func applyDefaults(cfg, defaults *Config) {
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = defaults.Backend.TimeoutSeconds
	}
	if cfg.Backend.LoadAttempts == 0 {
		cfg.Backend.LoadAttempts = defaults.Backend.LoadAttempts
	}
	if cfg.Backend.LoadRetryDelayMS == 0 {
		cfg.Backend.LoadRetryDelayMS = defaults.Backend.LoadRetryDelayMS
	}
	if cfg.Backend.VerifyLocal == nil {
		cfg.Backend.VerifyLocal = defaults.Backend.VerifyLocal
	}
	if cfg.Generation.Instruction == "" {
		cfg.Generation.Instruction = defaults.Generation.Instruction
	}
	if cfg.Generation.MaxLength == 0 {
		cfg.Generation.MaxLength = defaults.Generation.MaxLength
	}
	if cfg.Generation.NumBeams == 0 {
		cfg.Generation.NumBeams = defaults.Generation.NumBeams
	}
	if cfg.Generation.NumReturnSequences == 0 {
		cfg.Generation.NumReturnSequences = defaults.Generation.NumReturnSequences
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = defaults.Cache.TTLMinutes
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = defaults.Cache.Capacity
	}
	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	for label, mc := range defaults.Models {
		if cur, ok := cfg.Models[label]; !ok || cur.Path == "" {
			cfg.Models[label] = mc
		}
	}
}

// EncodeConfig renders cfg as TOML.
func EncodeConfig(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}

	labels := make([]string, 0, len(cfg.Models))
	for label := range cfg.Models {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if _, err := model.ParseKind(label); err != nil {
			warnings = append(warnings, fmt.Sprintf("models.%s is not a known model and will be ignored", label))
		}
	}
	for _, k := range model.Kinds() {
		if ResolveModelPath(cfg, k) == "" {
			warnings = append(warnings, fmt.Sprintf("no path configured for model %s", k))
		}
	}

	if cfg.Generation.NumReturnSequences > cfg.Generation.NumBeams {
		warnings = append(warnings, fmt.Sprintf("num_return_sequences (%d) exceeds num_beams (%d); the backend will reject generation",
			cfg.Generation.NumReturnSequences, cfg.Generation.NumBeams))
	}
	if ResolveBackendBaseURL(cfg) == "" {
		warnings = append(warnings, "backend base_url is empty")
	}
	return warnings
}

// ResolveBackendBaseURL returns the inference backend base URL.
// Priority: $SUDHAR_BACKEND_BASE_URL env > config value.
func ResolveBackendBaseURL(cfg *Config) string {
	if url := os.Getenv("SUDHAR_BACKEND_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Backend.BaseURL
	}
	return ""
}

// ResolveBackendAPIKey returns the inference backend API key.
// Priority: $SUDHAR_BACKEND_API_KEY env > config value.
func ResolveBackendAPIKey(cfg *Config) string {
	if key := os.Getenv("SUDHAR_BACKEND_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Backend.APIKey
	}
	return ""
}

// ResolveModelPath returns the model directory for k.
// Priority: $SUDHAR_MODEL_PATH_<LABEL> env > config value.
func ResolveModelPath(cfg *Config, k model.Kind) string {
	if path := os.Getenv("SUDHAR_MODEL_PATH_" + strings.ToUpper(k.String())); path != "" {
		return path
	}
	if cfg != nil {
		return cfg.Models[k.String()].Path
	}
	return ""
}

// BackendTimeout returns the per-request backend timeout.
func BackendTimeout(cfg *Config) time.Duration {
	if cfg == nil || cfg.Backend.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
}

// CacheTTL returns the idle lifetime of a loaded model.
func CacheTTL(cfg *Config) time.Duration {
	if cfg == nil || cfg.Cache.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(cfg.Cache.TTLMinutes) * time.Minute
}

// VerifyLocalEnabled returns whether model directories are checked on disk before loading.
func VerifyLocalEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Backend.VerifyLocal == nil {
		return true // default true
	}
	return *cfg.Backend.VerifyLocal
}
