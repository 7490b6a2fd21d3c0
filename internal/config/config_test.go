package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(parse(t))
	require.NoError(t, err)
	assert.Equal(t, "growfluent.db", cfg.DB.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 2, cfg.Oracle.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.Oracle.RetryDelay)
	assert.Equal(t, "Spanish (Latin American)", cfg.Oracle.NativeLanguage)
	assert.False(t, cfg.Remote.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: from-file.db
http:
  addr: ":9000"
oracle:
  model: file-model
  retry_delay: 3s
log:
  level: DEBUG
`), 0o644))

	t.Setenv("GROWFLUENT_HTTP__ADDR", ":9100")
	t.Setenv("GROWFLUENT_ORACLE__API_KEY", "sk-test")

	cfg, err := Load(parse(t, "--config", path, "--oracle.model", "flag-model"))
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DB.Path, "file overrides default")
	assert.Equal(t, ":9100", cfg.HTTP.Addr, "env overrides file")
	assert.Equal(t, "sk-test", cfg.Oracle.APIKey)
	assert.Equal(t, "flag-model", cfg.Oracle.Model, "explicit flag overrides file")
	assert.Equal(t, 3*time.Second, cfg.Oracle.RetryDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "missing explicit file", args: []string{"--config", "nope.yaml"}},
		{name: "remote without dsn", args: []string{"--remote.enabled"}},
		{name: "bad log level", env: map[string]string{"GROWFLUENT_LOG__LEVEL": "verbose"}},
		{name: "negative rate", args: []string{"--oracle.requests_per_second=-1"}},
		{name: "bad base url", args: []string{"--oracle.base_url", "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(parse(t, tt.args...))
			assert.Error(t, err)
		})
	}
}
