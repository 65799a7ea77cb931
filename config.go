package routed

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"
)

// EngineConfig is the typed configuration surface of an Engine. It is
// populated either by zero-value defaults (see NewEngineConfig), or by
// loading a JSON/TOML/YAML/INI file with LoadEngineConfig, grounded on the
// teacher's own flat-field configuration in air.go (AppName, Address,
// ReadTimeout, GzipMIMETypes, ...) generalized into its own decodable type.
type EngineConfig struct {
	AppName string `mapstructure:"app_name"`
	Address string `mapstructure:"address"`

	DebugMode bool `mapstructure:"debug_mode"`

	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`

	// PathInternCacheSize bounds the path-intern LRU (pathcache.go) in
	// bytes, per spec.md §4.1.
	PathInternCacheSize int `mapstructure:"path_intern_cache_size"`

	DefaultOptionsEnabled bool `mapstructure:"default_options_enabled"`

	// EnableRequestContainerFastPath switches per-request containers
	// between a read-only child view (fast path) and a mutable child,
	// per spec.md §4.5.
	EnableRequestContainerFastPath bool `mapstructure:"enable_request_container_fast_path"`

	LogEnabled bool   `mapstructure:"log_enabled"`
	LogFormat  string `mapstructure:"log_format"`

	GzipEnabled          bool     `mapstructure:"gzip_enabled"`
	GzipCompressionLevel int      `mapstructure:"gzip_compression_level"`
	GzipMIMETypes        []string `mapstructure:"gzip_mime_types"`

	MinifierEnabled bool `mapstructure:"minifier_enabled"`

	WebSocketHandshakeTimeout time.Duration `mapstructure:"websocket_handshake_timeout"`
	WebSocketSubprotocols     []string      `mapstructure:"websocket_subprotocols"`

	Multipart MultipartConfig `mapstructure:"multipart"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`

	HTTP2Enabled bool `mapstructure:"http2_enabled"`
	H2CEnabled   bool `mapstructure:"h2c_enabled"`
}

// MultipartConfig governs the upload guardrails described in spec.md §4.4
// and §6.
type MultipartConfig struct {
	MaxMemory       int64    `mapstructure:"max_memory"`
	MaxFileSize     int64    `mapstructure:"max_file_size"`
	MaxDiskUsage    int64    `mapstructure:"max_disk_usage"`
	UploadDir       string   `mapstructure:"upload_dir"`
	AllowedExts     []string `mapstructure:"allowed_extensions"`
	FilePermissions uint32   `mapstructure:"file_permissions"`
}

// ShutdownConfig governs the drain controller described in spec.md §4.7.
type ShutdownConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	ForceAfter  time.Duration `mapstructure:"force_after"`
	Signals     []string      `mapstructure:"signals"`
}

// NewEngineConfig returns an EngineConfig populated with the engine's
// defaults, mirroring the field-by-field defaults air.go's `New` assigns.
func NewEngineConfig() EngineConfig {
	return EngineConfig{
		AppName:                        "routed",
		Address:                        "localhost:8080",
		MaxHeaderBytes:                 1 << 20,
		PathInternCacheSize:            32 << 20,
		DefaultOptionsEnabled:          true,
		EnableRequestContainerFastPath: true,
		LogEnabled:                     true,
		GzipEnabled:                    true,
		GzipCompressionLevel:           gzip.DefaultCompression,
		GzipMIMETypes: []string{
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
			"application/json",
			"application/xml",
			"image/svg+xml",
		},
		MinifierEnabled:           true,
		WebSocketHandshakeTimeout: 10 * time.Second,
		Multipart: MultipartConfig{
			MaxMemory:       32 << 20,
			MaxFileSize:     10 << 20,
			MaxDiskUsage:    100 << 20,
			FilePermissions: 0o644,
		},
		Shutdown: ShutdownConfig{
			Enabled:     true,
			GracePeriod: 15 * time.Second,
			ForceAfter:  30 * time.Second,
			Signals:     []string{"SIGINT", "SIGTERM"},
		},
	}
}

// LoadEngineConfig reads path, dispatching on its extension to the
// appropriate decoder — JSON via the standard library, TOML via
// BurntSushi/toml, YAML via gopkg.in/yaml.v2, INI via gopkg.in/ini.v1 —
// into a generic map, then materializes it onto an EngineConfig with
// mitchellh/mapstructure, mirroring the teacher's own multi-format
// `ConfigFile` loading in air.go.
func LoadEngineConfig(path string) (EngineConfig, error) {
	raw, err := decodeConfigFile(path)
	if err != nil {
		return EngineConfig{}, err
	}

	cfg := NewEngineConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return EngineConfig{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return EngineConfig{}, err
	}

	return cfg, nil
}

func decodeConfigFile(path string) (map[string]interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var m map[string]interface{}
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ".toml":
		var m map[string]interface{}
		if err := toml.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ".yaml", ".yml":
		var m map[string]interface{}
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case ".ini":
		f, err := ini.Load(b)
		if err != nil {
			return nil, err
		}
		m := map[string]interface{}{}
		for _, section := range f.Sections() {
			for _, key := range section.Keys() {
				m[key.Name()] = key.Value()
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("routed: unsupported config file extension %q", filepath.Ext(path))
	}
}

// configWatcher hot-reloads an EngineConfig from its source file on
// writes, grounded on the teacher's fsnotify use in coffer.go (there
// invalidating cached assets; here rebuilding configuration instead).
type configWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	onLoad  func(EngineConfig)
}

// watchEngineConfig starts watching path for writes, invoking onLoad with
// each successfully reloaded EngineConfig. The returned configWatcher's
// Close stops the watch.
func watchEngineConfig(path string, onLoad func(EngineConfig)) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &configWatcher{path: path, watcher: w, onLoad: onLoad}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cw.mu.Lock()
				if cfg, err := LoadEngineConfig(path); err == nil {
					cw.onLoad(cfg)
				}
				cw.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return cw, nil
}

func (cw *configWatcher) Close() error { return cw.watcher.Close() }
