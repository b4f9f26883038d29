// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// =============================================================================
// CONFIGURATION STRUCTURES
// =============================================================================

// Config is the main configuration structure for chatstore.
type Config struct {
	// Storage selects where conversations are persisted.
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Generator controls how assistant replies are produced.
	Generator GeneratorConfig `toml:"generator" json:"generator"`

	// Local holds settings for the Ollama provider.
	Local LocalConfig `toml:"local" json:"local"`

	// Cloud holds settings for OpenAI-compatible providers.
	Cloud CloudConfig `toml:"cloud" json:"cloud"`

	// Logging controls the slog handler and optional log files.
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Export controls /export output.
	Export ExportConfig `toml:"export" json:"export"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is one of "json", "sqlite", "postgres", "memory".
	Backend string `toml:"backend" json:"backend"`

	// Path is the JSON file or SQLite database location.
	Path string `toml:"path" json:"path"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `toml:"database_url" json:"database_url"`

	// TablePrefix is prepended to the table name on SQL backends.
	TablePrefix string `toml:"table_prefix" json:"table_prefix"`

	// Watch reloads the store when the JSON file changes on disk.
	Watch bool `toml:"watch" json:"watch"`
}

// GeneratorConfig controls reply generation.
type GeneratorConfig struct {
	// Provider is one of "openai", "ollama", "echo".
	Provider string `toml:"provider" json:"provider"`

	// SystemPrompt is sent before the conversation. Empty disables it.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	// TimeoutSecs bounds a single reply. Zero disables the bound.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// RequestsPerMinute throttles generator calls. Zero means unlimited.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`

	// Temperature is passed to the model.
	Temperature float64 `toml:"temperature" json:"temperature"`

	// MaxRetries applies to transient provider failures.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// LocalConfig holds Ollama settings.
type LocalConfig struct {
	OllamaURL   string `toml:"ollama_url" json:"ollama_url"`
	OllamaModel string `toml:"ollama_model" json:"ollama_model"`
}

// CloudConfig holds settings for an OpenAI-compatible endpoint.
type CloudConfig struct {
	APIKey  string `toml:"api_key" json:"api_key"`
	BaseURL string `toml:"base_url" json:"base_url"`
	Model   string `toml:"model" json:"model"`
}

// LoggingConfig controls diagnostics output.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`

	// Dir, when set, receives timestamped log files instead of stderr.
	Dir string `toml:"dir" json:"dir"`

	// MaxFiles is how many log files to keep in Dir.
	MaxFiles int `toml:"max_files" json:"max_files"`
}

// ExportConfig controls conversation export.
type ExportConfig struct {
	OutputDir string `toml:"output_dir" json:"output_dir"`
	Format    string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderEcho   = "echo"
)

// Defaults for generator settings.
const (
	DefaultSystemPrompt = "You are a helpful and concise assistant."
	DefaultCloudBaseURL = "https://api.groq.com/openai/v1"
	DefaultCloudModel   = "llama-3.1-8b-instant"
	DefaultOllamaURL    = "http://localhost:11434"
	DefaultOllamaModel  = "llama3.2"
	DefaultTemperature  = 0.6
	DefaultTimeoutSecs  = 120
	DefaultLogMaxFiles  = 5
	storeFileName       = "chats.json"
	configDirName       = ".chatstore"
)

// Default returns a configuration with sensible defaults.
func Default() *Config {
	storePath := storeFileName
	if dir, err := ConfigDir(); err == nil {
		storePath = filepath.Join(dir, storeFileName)
	}

	return &Config{
		Storage: StorageConfig{
			Backend: "json",
			Path:    storePath,
			Watch:   false,
		},
		Generator: GeneratorConfig{
			Provider:          ProviderOpenAI,
			SystemPrompt:      DefaultSystemPrompt,
			TimeoutSecs:       DefaultTimeoutSecs,
			RequestsPerMinute: 0,
			Temperature:       DefaultTemperature,
			MaxRetries:        2,
		},
		Local: LocalConfig{
			OllamaURL:   DefaultOllamaURL,
			OllamaModel: DefaultOllamaModel,
		},
		Cloud: CloudConfig{
			BaseURL: DefaultCloudBaseURL,
			Model:   DefaultCloudModel,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			MaxFiles: DefaultLogMaxFiles,
		},
		Export: ExportConfig{
			OutputDir: ".",
			Format:    "text",
		},
	}
}

// ReplyTimeout returns the generator timeout as a duration.
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the configuration directory (~/.chatstore).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads ~/.chatstore/config.toml, falling back to config.json, then to
// defaults. Environment overrides are applied in every case. When a file
// exists but cannot be decoded, the defaults are returned together with the
// decode error so the caller can warn and continue.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	loaded := false
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
				cfg = Default()
			} else {
				loaded = true
			}
		}
	}

	if !loaded {
		if jsonPath, err := ConfigPathJSON(); err == nil {
			if _, statErr := os.Stat(jsonPath); statErr == nil {
				if err := LoadJSON(cfg, jsonPath); err != nil {
					loadErr = errors.Join(loadErr, fmt.Errorf("failed to load JSON config: %w", err))
					cfg = Default()
				}
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file into cfg, then fills unset fields with defaults.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file into cfg, then fills unset fields with defaults.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadFromPath loads configuration from an explicit file. Files ending in
// .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults replaces zero values that a partial file may leave behind.
// Numeric zeros that carry meaning (timeout, rate limit, retries) are kept.
func fillDefaults(cfg *Config) {
	def := Default()

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "postgres" && cfg.Storage.Backend != "memory" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = def.Generator.Provider
	}
	if cfg.Local.OllamaURL == "" {
		cfg.Local.OllamaURL = def.Local.OllamaURL
	}
	if cfg.Local.OllamaModel == "" {
		cfg.Local.OllamaModel = def.Local.OllamaModel
	}
	if cfg.Cloud.BaseURL == "" {
		cfg.Cloud.BaseURL = def.Cloud.BaseURL
	}
	if cfg.Cloud.Model == "" {
		cfg.Cloud.Model = def.Cloud.Model
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.MaxFiles <= 0 {
		cfg.Logging.MaxFiles = def.Logging.MaxFiles
	}
	if cfg.Export.OutputDir == "" {
		cfg.Export.OutputDir = def.Export.OutputDir
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = def.Export.Format
	}
}

// =============================================================================
// SAVING
// =============================================================================

// SaveTOML writes cfg to path with owner-only permissions, creating the
// parent directory if needed.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// api_key may be present
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# chatstore configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Validate checks the configuration and returns a validation.Errors keyed by
// section when something is wrong.
func (c *Config) Validate() error {
	s := &c.Storage
	needsPath := s.Backend == "json" || s.Backend == "sqlite"

	errs := validation.Errors{
		"storage": validation.ValidateStruct(s,
			validation.Field(&s.Backend, validation.Required,
				validation.In("json", "sqlite", "postgres", "memory")),
			validation.Field(&s.Path, validation.When(needsPath, validation.Required)),
			validation.Field(&s.DatabaseURL, validation.When(s.Backend == "postgres", validation.Required)),
			validation.Field(&s.TablePrefix, validation.Match(tablePrefixPattern).
				Error("may only contain letters, digits and underscores")),
		),
	}

	g := &c.Generator
	errs["generator"] = validation.ValidateStruct(g,
		validation.Field(&g.Provider, validation.Required,
			validation.In(ProviderOpenAI, ProviderOllama, ProviderEcho)),
		validation.Field(&g.TimeoutSecs, validation.Min(0)),
		validation.Field(&g.RequestsPerMinute, validation.Min(0)),
		validation.Field(&g.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&g.MaxRetries, validation.Min(0), validation.Max(10)),
	)

	l := &c.Local
	errs["local"] = validation.ValidateStruct(l,
		validation.Field(&l.OllamaURL, validation.When(g.Provider == ProviderOllama, validation.Required),
			validation.By(httpURL)),
		validation.Field(&l.OllamaModel, validation.When(g.Provider == ProviderOllama, validation.Required)),
	)

	cl := &c.Cloud
	errs["cloud"] = validation.ValidateStruct(cl,
		validation.Field(&cl.BaseURL, validation.When(g.Provider == ProviderOpenAI, validation.Required),
			validation.By(httpURL)),
		validation.Field(&cl.Model, validation.When(g.Provider == ProviderOpenAI, validation.Required)),
	)

	lg := &c.Logging
	errs["logging"] = validation.ValidateStruct(lg,
		validation.Field(&lg.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&lg.Format, validation.In("text", "json")),
		validation.Field(&lg.MaxFiles, validation.When(lg.Dir != "", validation.Min(1))),
	)

	e := &c.Export
	errs["export"] = validation.ValidateStruct(e,
		validation.Field(&e.Format, validation.In("text", "txt", "markdown", "md", "json", "yaml", "yml")),
	)

	return errs.Filter()
}

// httpURL accepts empty strings and absolute http(s) URLs.
func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATSTORE_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if backend := os.Getenv("CHATSTORE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv("CHATSTORE_STORE_PATH"); path != "" {
		c.Storage.Path = path
	}
	if dbURL := os.Getenv("CHATSTORE_DATABASE_URL"); dbURL != "" {
		c.Storage.DatabaseURL = dbURL
	}
	if watch := os.Getenv("CHATSTORE_WATCH"); watch != "" {
		c.Storage.Watch = watch == "1" || strings.EqualFold(watch, "true")
	}

	if provider := os.Getenv("CHATSTORE_PROVIDER"); provider != "" {
		c.Generator.Provider = strings.ToLower(provider)
	}

	// CHATSTORE_MODEL applies to whichever provider is selected
	if model := os.Getenv("CHATSTORE_MODEL"); model != "" {
		if c.Generator.Provider == ProviderOllama {
			c.Local.OllamaModel = model
		} else {
			c.Cloud.Model = model
		}
	}

	if ollamaURL := os.Getenv("CHATSTORE_OLLAMA_URL"); ollamaURL != "" {
		c.Local.OllamaURL = ollamaURL
	}

	for _, name := range []string{"CHATSTORE_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			c.Cloud.APIKey = key
			break
		}
	}

	if baseURL := os.Getenv("CHATSTORE_BASE_URL"); baseURL != "" {
		c.Cloud.BaseURL = baseURL
	}

	if level := os.Getenv("CHATSTORE_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if secs := os.Getenv("CHATSTORE_TIMEOUT_SECS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			c.Generator.TimeoutSecs = n
		}
	}
}

// =============================================================================
// KEY ACCESS
// =============================================================================

// Get returns the value at a dot-separated key such as "generator.provider".
// Section and field names match case-insensitively and accept snake_case.
// The cloud API key is masked.
func (c *Config) Get(key string) (interface{}, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return nil, fmt.Errorf("%s is a section, not a value", key)
			}
			if strings.EqualFold(fieldName, "APIKey") {
				return maskSecret(field.String()), nil
			}
			return field.Interface(), nil
		}

		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Keys lists every dot-separated key accepted by Get.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		sectionName := tomlName(section)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, sectionName+"."+tomlName(section.Type.Field(j)))
		}
	}
	return keys
}

func tomlName(f reflect.StructField) string {
	if tag := f.Tag.Get("toml"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(f.Name)
}

// normalizeFieldName turns snake_case or kebab-case into a Go field name.
// "api_key" becomes "ApiKey", which FieldByNameFunc matches against APIKey.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
