// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears the variables ApplyEnvOverrides reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"CHATSTORE_BACKEND", "CHATSTORE_STORE_PATH", "CHATSTORE_DATABASE_URL",
		"CHATSTORE_WATCH", "CHATSTORE_PROVIDER", "CHATSTORE_MODEL",
		"CHATSTORE_OLLAMA_URL", "CHATSTORE_API_KEY", "GROQ_API_KEY",
		"OPENAI_API_KEY", "CHATSTORE_BASE_URL", "CHATSTORE_LOG_LEVEL",
		"CHATSTORE_TIMEOUT_SECS",
	} {
		t.Setenv(name, "")
	}
	return home
}

func TestDefault(t *testing.T) {
	home := isolate(t)

	cfg := Default()
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(home, ".chatstore", "chats.json"), cfg.Storage.Path)
	assert.Equal(t, ProviderOpenAI, cfg.Generator.Provider)
	assert.Equal(t, DefaultCloudBaseURL, cfg.Cloud.BaseURL)
	assert.Equal(t, DefaultCloudModel, cfg.Cloud.Model)
	assert.Equal(t, 2*time.Minute, cfg.ReplyTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_TOMLPreferredOverJSON(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".chatstore")
	require.NoError(t, os.MkdirAll(dir, 0700))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[generator]
provider = "ollama"

[local]
ollama_model = "mistral"
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"generator":{"provider":"echo"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Generator.Provider)
	assert.Equal(t, "mistral", cfg.Local.OllamaModel)
	// partial file keeps defaults elsewhere
	assert.Equal(t, DefaultOllamaURL, cfg.Local.OllamaURL)
	assert.Equal(t, "json", cfg.Storage.Backend)
}

func TestLoad_BrokenFileFallsBackWithError(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".chatstore")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [toml"), 0600))

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Generator, cfg.Generator)
}

func TestLoadFromPath_JSON(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"storage": {"backend": "sqlite", "path": "/tmp/chats.db", "table_prefix": "t_"},
		"generator": {"provider": "echo", "requests_per_minute": 30}
	}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "t_", cfg.Storage.TablePrefix)
	assert.Equal(t, 30, cfg.Generator.RequestsPerMinute)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
backend = "redis"
`), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage")
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Generator.Provider = ProviderEcho
	cfg.Logging.Format = "json"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		section string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage"},
		{"postgres without url", func(c *Config) { c.Storage.Backend = "postgres" }, "storage"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.Path = "" }, "storage"},
		{"bad table prefix", func(c *Config) { c.Storage.TablePrefix = "x; drop" }, "storage"},
		{"unknown provider", func(c *Config) { c.Generator.Provider = "bard" }, "generator"},
		{"negative timeout", func(c *Config) { c.Generator.TimeoutSecs = -1 }, "generator"},
		{"temperature too high", func(c *Config) { c.Generator.Temperature = 3 }, "generator"},
		{"ollama url scheme", func(c *Config) { c.Local.OllamaURL = "ftp://host" }, "local"},
		{"cloud url without host", func(c *Config) { c.Cloud.BaseURL = "https://" }, "cloud"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
		{"bad export format", func(c *Config) { c.Export.Format = "pdf" }, "export"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs validation.Errors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs, tt.section)
		})
	}
}

func TestValidate_PostgresWithURL(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "postgres"
	cfg.Storage.Path = ""
	cfg.Storage.DatabaseURL = "postgres://localhost/chats"
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CHATSTORE_BACKEND", "SQLite")
	t.Setenv("CHATSTORE_STORE_PATH", "/data/chats.db")
	t.Setenv("CHATSTORE_PROVIDER", "ollama")
	t.Setenv("CHATSTORE_MODEL", "qwen2.5")
	t.Setenv("CHATSTORE_WATCH", "true")
	t.Setenv("CHATSTORE_LOG_LEVEL", "DEBUG")
	t.Setenv("CHATSTORE_TIMEOUT_SECS", "30")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/data/chats.db", cfg.Storage.Path)
	assert.True(t, cfg.Storage.Watch)
	assert.Equal(t, ProviderOllama, cfg.Generator.Provider)
	assert.Equal(t, "qwen2.5", cfg.Local.OllamaModel)
	assert.Equal(t, DefaultCloudModel, cfg.Cloud.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.ReplyTimeout())
}

func TestApplyEnvOverrides_APIKeyFallbacks(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"none", nil, ""},
		{"openai only", map[string]string{"OPENAI_API_KEY": "sk-openai"}, "sk-openai"},
		{"groq beats openai", map[string]string{"GROQ_API_KEY": "gsk", "OPENAI_API_KEY": "sk-openai"}, "gsk"},
		{"own key wins", map[string]string{"CHATSTORE_API_KEY": "mine", "GROQ_API_KEY": "gsk"}, "mine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Default()
			cfg.ApplyEnvOverrides()
			assert.Equal(t, tt.want, cfg.Cloud.APIKey)
		})
	}
}

func TestGet(t *testing.T) {
	cfg := Default()
	cfg.Cloud.APIKey = "gsk_1234567890abcd"

	v, err := cfg.Get("generator.provider")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, v)

	v, err = cfg.Get("local.ollama_url")
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaURL, v)

	v, err = cfg.Get("cloud.api_key")
	require.NoError(t, err)
	assert.Equal(t, "gsk_****abcd", v)

	_, err = cfg.Get("storage")
	assert.Error(t, err)

	_, err = cfg.Get("storage.nope")
	assert.Error(t, err)

	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys_AllResolvable(t *testing.T) {
	cfg := Default()
	keys := Keys()
	assert.Contains(t, keys, "storage.database_url")
	assert.Contains(t, keys, "generator.requests_per_minute")

	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "id", "abc12345")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"id":"abc12345"`)
}

func TestSetupLogFile_Rotation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		name := filepath.Join(dir, logFilePrefix+"2024-01-0"+string(rune('1'+i))+"T00-00-00.000.log")
		require.NoError(t, os.WriteFile(name, nil, 0644))
	}

	f, err := SetupLogFile(dir, 2)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	files, err := filepath.Glob(filepath.Join(dir, logFilePrefix+"*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, f.Name())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, ParseLevel("debug").String(), "DEBUG")
	assert.Equal(t, ParseLevel("Warning").String(), "WARN")
	assert.Equal(t, ParseLevel("").String(), "INFO")
}
