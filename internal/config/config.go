package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration.
type Config struct {
	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" toml:"db_max_open_conns"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" toml:"db_max_idle_conns"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" toml:"disabled_tools"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" toml:"log_level"`

	LLM     LLMConfig     `json:"llm" toml:"llm"`
	Storage StorageConfig `json:"storage" toml:"storage"`
	Jobs    JobsConfig    `json:"jobs" toml:"jobs"`
	HTTP    HTTPConfig    `json:"http" toml:"http"`
}

// LLMConfig selects and configures the external model.
type LLMConfig struct {
	// Provider is "claude" or "gemini".
	Provider  string `json:"provider,omitempty" toml:"provider"`
	Model     string `json:"model,omitempty" toml:"model"`
	APIKey    string `json:"api_key,omitempty" toml:"api_key"`
	MaxTokens int    `json:"max_tokens,omitempty" toml:"max_tokens"`
	// TimeoutSeconds bounds a single model call.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" toml:"timeout_seconds"`

	// Vertex switches the gemini provider to the Vertex AI backend.
	Vertex   bool   `json:"vertex,omitempty" toml:"vertex"`
	Project  string `json:"project,omitempty" toml:"project"`
	Location string `json:"location,omitempty" toml:"location"`
}

// StorageConfig points at the S3-compatible bucket holding uploaded images.
// An empty Bucket means image refs must already be http(s) URLs.
type StorageConfig struct {
	Bucket            string `json:"bucket,omitempty" toml:"bucket"`
	Region            string `json:"region,omitempty" toml:"region"`
	Endpoint          string `json:"endpoint,omitempty" toml:"endpoint"`
	AccessKey         string `json:"access_key,omitempty" toml:"access_key"`
	SecretKey         string `json:"secret_key,omitempty" toml:"secret_key"`
	PresignTTLMinutes int    `json:"presign_ttl_minutes,omitempty" toml:"presign_ttl_minutes"`
}

// JobsConfig tunes listing windows and the stale-job reaper.
type JobsConfig struct {
	FixRetentionMinutes int    `json:"fix_retention_minutes,omitempty" toml:"fix_retention_minutes"`
	RecentPendingLimit  int    `json:"recent_pending_limit,omitempty" toml:"recent_pending_limit"`
	StuckAfterMinutes   int    `json:"stuck_after_minutes,omitempty" toml:"stuck_after_minutes"`
	ReaperSchedule      string `json:"reaper_schedule,omitempty" toml:"reaper_schedule"`
}

// HTTPConfig configures the JSON API server.
type HTTPConfig struct {
	Host string `json:"host,omitempty" toml:"host"`
	Port int    `json:"port,omitempty" toml:"port"`
	// SubmitRatePerSecond throttles job submissions; 0 disables throttling.
	SubmitRatePerSecond float64 `json:"submit_rate_per_second,omitempty" toml:"submit_rate_per_second"`
	SubmitBurst         int     `json:"submit_burst,omitempty" toml:"submit_burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:       "claude",
			Model:          "claude-sonnet-4-5",
			MaxTokens:      1500,
			TimeoutSeconds: 60,
			Location:       "us-central1",
		},
		Storage: StorageConfig{
			Region:            "auto",
			PresignTTLMinutes: 15,
		},
		Jobs: JobsConfig{
			FixRetentionMinutes: 60,
			RecentPendingLimit:  3,
			StuckAfterMinutes:   15,
			ReaperSchedule:      "@every 1m",
		},
		HTTP: HTTPConfig{
			Host:                "127.0.0.1",
			Port:                8090,
			SubmitRatePerSecond: 5,
			SubmitBurst:         10,
		},
	}
}

// FixRetention returns the fix job listing window.
func (c *Config) FixRetention() time.Duration {
	return time.Duration(c.Jobs.FixRetentionMinutes) * time.Minute
}

// StuckAfter returns the age after which a pending job is reaped.
func (c *Config) StuckAfter() time.Duration {
	return time.Duration(c.Jobs.StuckAfterMinutes) * time.Minute
}

// LLMTimeout returns the per-call model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// PresignTTL returns the lifetime of presigned image URLs.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.Storage.PresignTTLMinutes) * time.Minute
}

// Load loads configuration from baseDir/config.json, falling back to baseDir/config.toml.
// Returns default config if neither file exists. Environment overrides are applied last.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.plate.
func Load(baseDir string) (*Config, error) {
	path := filepath.Join(baseDir, "config.json")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = filepath.Join(baseDir, "config.toml")
	}
	cfg, err := loadFileRaw(path)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	applyEnv(merged, os.Getenv)
	return merged, nil
}

// loadFileRaw loads configuration from a specific file path, decoding by extension.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if strings.HasSuffix(configPath, ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and a few knobs from the environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PLATE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := getenv("PLATE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	switch cfg.LLM.Provider {
	case "claude":
		if v := getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
	case "gemini":
		if v := getenv("GEMINI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
	}
	if v := getenv("PLATE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := getenv("PLATE_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := getenv("PLATE_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := getenv("PLATE_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := getenv("PLATE_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := getenv("PLATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("PLATE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.HTTP.Port = port
		}
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)

	result.LLM = LLMConfig{
		Provider:       pickString(overlay.LLM.Provider, base.LLM.Provider),
		Model:          pickString(overlay.LLM.Model, base.LLM.Model),
		APIKey:         pickString(overlay.LLM.APIKey, base.LLM.APIKey),
		MaxTokens:      pickInt(overlay.LLM.MaxTokens, base.LLM.MaxTokens),
		TimeoutSeconds: pickInt(overlay.LLM.TimeoutSeconds, base.LLM.TimeoutSeconds),
		Vertex:         base.LLM.Vertex || overlay.LLM.Vertex,
		Project:        pickString(overlay.LLM.Project, base.LLM.Project),
		Location:       pickString(overlay.LLM.Location, base.LLM.Location),
	}

	result.Storage = StorageConfig{
		Bucket:            pickString(overlay.Storage.Bucket, base.Storage.Bucket),
		Region:            pickString(overlay.Storage.Region, base.Storage.Region),
		Endpoint:          pickString(overlay.Storage.Endpoint, base.Storage.Endpoint),
		AccessKey:         pickString(overlay.Storage.AccessKey, base.Storage.AccessKey),
		SecretKey:         pickString(overlay.Storage.SecretKey, base.Storage.SecretKey),
		PresignTTLMinutes: pickInt(overlay.Storage.PresignTTLMinutes, base.Storage.PresignTTLMinutes),
	}

	result.Jobs = JobsConfig{
		FixRetentionMinutes: pickInt(overlay.Jobs.FixRetentionMinutes, base.Jobs.FixRetentionMinutes),
		RecentPendingLimit:  pickInt(overlay.Jobs.RecentPendingLimit, base.Jobs.RecentPendingLimit),
		StuckAfterMinutes:   pickInt(overlay.Jobs.StuckAfterMinutes, base.Jobs.StuckAfterMinutes),
		ReaperSchedule:      pickString(overlay.Jobs.ReaperSchedule, base.Jobs.ReaperSchedule),
	}

	result.HTTP = HTTPConfig{
		Host:                pickString(overlay.HTTP.Host, base.HTTP.Host),
		Port:                pickInt(overlay.HTTP.Port, base.HTTP.Port),
		SubmitRatePerSecond: base.HTTP.SubmitRatePerSecond,
		SubmitBurst:         pickInt(overlay.HTTP.SubmitBurst, base.HTTP.SubmitBurst),
	}
	if overlay.HTTP.SubmitRatePerSecond != 0 {
		result.HTTP.SubmitRatePerSecond = overlay.HTTP.SubmitRatePerSecond
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
