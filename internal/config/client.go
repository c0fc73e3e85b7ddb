package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ClientConfig configures collabctl and anything else built on internal/client.
type ClientConfig struct {
	ServerURL        string        // Base HTTP URL, e.g. http://localhost:8080
	Token            string        // Bearer token presented to REST and websocket endpoints
	UserID           string        // Identity used for local permission checks (matches the token subject)
	UserName         string        // Display name shown to other participants
	CacheDir         string        // Directory holding the local document cache
	BatchInterval    time.Duration // Update batching flush interval
	AutosaveInterval time.Duration // Local cache autosave interval
	RequestTimeout   time.Duration // Upper bound on any acknowledged request
	ReconnectDelay   time.Duration // Fixed delay between reconnect attempts
}

// clientFile mirrors the TOML layout. Durations are strings ("5s").
type clientFile struct {
	ServerURL        string `toml:"server_url"`
	Token            string `toml:"token"`
	UserID           string `toml:"user_id"`
	UserName         string `toml:"user_name"`
	CacheDir         string `toml:"cache_dir"`
	BatchInterval    string `toml:"batch_interval"`
	AutosaveInterval string `toml:"autosave_interval"`
	RequestTimeout   string `toml:"request_timeout"`
	ReconnectDelay   string `toml:"reconnect_delay"`
}

// DefaultClientConfig returns the settings used when no config file exists.
func DefaultClientConfig() *ClientConfig {
	cacheDir := ".collabsync"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".collabsync")
	}
	return &ClientConfig{
		ServerURL:        "http://localhost:8080",
		CacheDir:         cacheDir,
		BatchInterval:    5 * time.Second,
		AutosaveInterval: 30 * time.Second,
		RequestTimeout:   10 * time.Second,
		ReconnectDelay:   2 * time.Second,
	}
}

// LoadClient reads a TOML client config. A missing file yields defaults;
// environment variables COLLAB_SERVER_URL and COLLAB_TOKEN override the file.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f clientFile
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := cfg.apply(&f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("COLLAB_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("COLLAB_TOKEN"); v != "" {
		cfg.Token = v
	}
	return cfg, nil
}

// Save writes the config back as TOML with owner-only permissions.
func (c *ClientConfig) Save(path string) error {
	f := clientFile{
		ServerURL:        c.ServerURL,
		Token:            c.Token,
		UserID:           c.UserID,
		UserName:         c.UserName,
		CacheDir:         c.CacheDir,
		BatchInterval:    c.BatchInterval.String(),
		AutosaveInterval: c.AutosaveInterval.String(),
		RequestTimeout:   c.RequestTimeout.String(),
		ReconnectDelay:   c.ReconnectDelay.String(),
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *ClientConfig) apply(f *clientFile) error {
	if f.ServerURL != "" {
		c.ServerURL = f.ServerURL
	}
	if f.Token != "" {
		c.Token = f.Token
	}
	if f.UserID != "" {
		c.UserID = f.UserID
	}
	if f.UserName != "" {
		c.UserName = f.UserName
	}
	if f.CacheDir != "" {
		c.CacheDir = f.CacheDir
	}

	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{f.BatchInterval, &c.BatchInterval, "batch_interval"},
		{f.AutosaveInterval, &c.AutosaveInterval, "autosave_interval"},
		{f.RequestTimeout, &c.RequestTimeout, "request_timeout"},
		{f.ReconnectDelay, &c.ReconnectDelay, "reconnect_delay"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
		*d.dst = v
	}
	return nil
}
