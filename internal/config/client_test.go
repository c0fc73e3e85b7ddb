package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("COLLAB_SERVER_URL", "")
	t.Setenv("COLLAB_TOKEN", "")

	cfg, err := LoadClient(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 5*time.Second, cfg.BatchInterval)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoadClient_ParsesFileAndEnvOverrides(t *testing.T) {
	t.Setenv("COLLAB_SERVER_URL", "")
	t.Setenv("COLLAB_TOKEN", "env-token")

	path := filepath.Join(t.TempDir(), "client.toml")
	content := `
server_url = "https://collab.example.com"
token = "file-token"
user_id = "user-1"
batch_interval = "2s"
autosave_interval = "1m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadClient(path)
	require.NoError(t, err)

	assert.Equal(t, "https://collab.example.com", cfg.ServerURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "user-1", cfg.UserID)
	assert.Equal(t, 2*time.Second, cfg.BatchInterval)
	assert.Equal(t, time.Minute, cfg.AutosaveInterval)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
}

func TestLoadClient_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(`batch_interval = "soon"`), 0600))

	_, err := LoadClient(path)
	assert.ErrorContains(t, err, "batch_interval")
}

func TestClientConfig_SaveRoundTrip(t *testing.T) {
	t.Setenv("COLLAB_SERVER_URL", "")
	t.Setenv("COLLAB_TOKEN", "")

	path := filepath.Join(t.TempDir(), "nested", "client.toml")
	cfg := DefaultClientConfig()
	cfg.Token = "abc"
	cfg.BatchInterval = 750 * time.Millisecond

	require.NoError(t, cfg.Save(path))

	loaded, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.Token)
	assert.Equal(t, 750*time.Millisecond, loaded.BatchInterval)
}
