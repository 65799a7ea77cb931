package routed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineConfigPopulatesDefaults(t *testing.T) {
	cfg := NewEngineConfig()

	assert.Equal(t, "localhost:8080", cfg.Address)
	assert.True(t, cfg.DefaultOptionsEnabled)
	assert.True(t, cfg.GzipEnabled)
	assert.Contains(t, cfg.GzipMIMETypes, "application/json")
	assert.Equal(t, int64(10<<20), cfg.Multipart.MaxFileSize)
	assert.True(t, cfg.Shutdown.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Shutdown.GracePeriod)
}

func TestLoadEngineConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app_name": "widgets-api",
		"address": "0.0.0.0:9000",
		"default_options_enabled": false
	}`), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "widgets-api", cfg.AppName)
	assert.Equal(t, "0.0.0.0:9000", cfg.Address)
	assert.False(t, cfg.DefaultOptionsEnabled)
	// Fields absent from the file keep NewEngineConfig's defaults.
	assert.True(t, cfg.GzipEnabled)
}

func TestLoadEngineConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: widgets-api\naddress: 0.0.0.0:9100\n"), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "widgets-api", cfg.AppName)
	assert.Equal(t, "0.0.0.0:9100", cfg.Address)
}

func TestLoadEngineConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("app_name = \"widgets-api\"\naddress = \"0.0.0.0:9200\"\n"), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "widgets-api", cfg.AppName)
	assert.Equal(t, "0.0.0.0:9200", cfg.Address)
}

func TestLoadEngineConfigFromINI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("app_name = widgets-api\naddress = 0.0.0.0:9300\n"), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "widgets-api", cfg.AppName)
	assert.Equal(t, "0.0.0.0:9300", cfg.Address)
}

func TestLoadEngineConfigRejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.xml")
	require.NoError(t, os.WriteFile(path, []byte("<config/>"), 0o644))

	_, err := LoadEngineConfig(path)
	assert.Error(t, err)
}

func TestEngineWatchConfigReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"address": "localhost:8080", "default_options_enabled": true}`), 0o644))

	e := New()
	require.NoError(t, e.WatchConfig(path))
	defer e.configWatcher.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{"address": "localhost:9999", "default_options_enabled": false}`), 0o644))

	assert.Eventually(t, func() bool {
		return e.snapshotConfig().Address == "localhost:9999"
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, e.snapshotConfig().DefaultOptionsEnabled)
}

func TestEngineSnapshotConfigIsSafeDuringConcurrentReload(t *testing.T) {
	e := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			cfg := NewEngineConfig()
			cfg.Address = "localhost:0"
			e.reloadConfig(cfg)
		}
	}()

	for i := 0; i < 200; i++ {
		_ = e.snapshotConfig().Address
		_ = e.table.DefaultOptionsEnabled()
	}
	<-done
}
