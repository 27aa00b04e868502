package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ".tasksms/tasks.db", cfg.Database.Path)
	assert.Equal(t, "anonymous", cfg.Auth.DefaultActor)
	assert.False(t, cfg.Demo.Seed)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
database:
  path: /tmp/tasks.db
demo:
  seed: true
webhooks:
  - url: http://localhost:9000/hook
    events: [created, DELETED]
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tasks.db", cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Demo.Seed)
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: mysql\n", "driver"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "dsn"},
		{"base path", "server:\n  base_path: api\n", "base_path"},
		{"required without secret", "auth:\n  required: true\n", "jwt_secret"},
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"log format", "log:\n  format: xml\n", "log.format"},
		{"webhook url", "webhooks:\n  - url: not a url\n", "invalid url"},
		{"webhook event", "webhooks:\n  - url: http://x/y\n    events: [archived]\n", "unknown event"},
		{"yaml", "server: [", "invalid config yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasksms.yml"), []byte("server:\n  addr: :9999\n"), 0o644))
	cfg, err = Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}
