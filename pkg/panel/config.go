package panel

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/skycoin/xfce4-panel/pkg/external"
	"github.com/skycoin/xfce4-panel/pkg/factory"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/util/env"
	"github.com/skycoin/xfce4-panel/pkg/util/pathutil"
)

// Environment overrides.
const (
	EnvConfig       = "XFCE_PANEL_CONFIG"
	EnvEmbedTimeout = "XFCE_PANEL_EMBED_TIMEOUT"
	EnvQueueLimit   = "XFCE_PANEL_QUEUE_LIMIT"
)

// DefaultLibDir is where plugin modules are installed.
const DefaultLibDir = "/usr/lib/xfce4/panel/plugins"

// Config defines configuration parameters for the panel.
type Config struct {
	Version string `json:"version"`

	Panel struct {
		Size     int    `json:"size"`
		Length   int    `json:"length"`
		Position string `json:"position"`
		Monitor  int    `json:"monitor"`
	} `json:"panel"`

	Items []ItemConfig `json:"items"`

	Plugins struct {
		Dirs          []factory.SearchDir `json:"dirs,omitempty"`
		LibDir        string              `json:"lib_dir"`
		WrapperPath   string              `json:"wrapper_path"`
		ForceExternal bool                `json:"force_external"`
		Watch         bool                `json:"watch"`
		EmbedTimeout  Duration            `json:"embed_timeout"`
		FlushDelay    Duration            `json:"flush_delay"`
		QueueLimit    int                 `json:"queue_limit"`
	} `json:"plugins"`

	// Transport forces an embedding transport. It is detected when empty.
	Transport string `json:"transport,omitempty"`

	LogStore struct {
		Location string `json:"location"`
	} `json:"log_store"`

	MetricsAddr     string   `json:"metrics_addr,omitempty"`
	LogLevel        string   `json:"log_level"`
	ShutdownTimeout Duration `json:"shutdown_timeout"` // time value, examples: 10s, 1m, etc
}

// ItemConfig is one plugin on the panel.
type ItemConfig struct {
	Name string   `json:"name"`
	ID   int      `json:"id"`
	Args []string `json:"args,omitempty"`
}

// DefaultConfig returns the configuration of a fresh panel.
func DefaultConfig() *Config {
	c := &Config{Version: "1.0", LogLevel: "info"}
	c.Panel.Size = 30
	c.Panel.Length = 1920
	c.Panel.Position = provider.PositionS.String()
	c.Items = []ItemConfig{
		{Name: "separator", ID: 1, Args: []string{"expand"}},
		{Name: "clock", ID: 2},
	}
	c.Plugins.LibDir = DefaultLibDir
	c.Plugins.WrapperPath = external.DefaultWrapperPath
	c.Plugins.Watch = true
	c.Plugins.EmbedTimeout = Duration(external.DefaultEmbedTimeout)
	c.Plugins.FlushDelay = Duration(external.DefaultFlushDelay)
	c.Plugins.QueueLimit = 64
	c.LogStore.Location = filepath.Join(pathutil.CacheHome(), "xfce4", "panel", "plugin-logs.db")
	c.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	return c
}

// ReadConfig decodes the config file at path over the defaults.
func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path) // nolint: gosec
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read config")
	}
	defer f.Close() // nolint: errcheck
	c, err := DecodeConfig(f)
	return c, pkgerrors.Wrapf(err, "config %s", path)
}

// DecodeConfig reads a JSON config over the defaults. Items are taken from
// the input only.
func DecodeConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	c.Items = nil
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write saves the config to path atomically.
func (c *Config) Write(path string) error {
	raw, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return err
	}
	if _, err := pathutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return pathutil.AtomicWriteFile(path, raw)
}

// Validate checks the config for values the panel cannot run with.
func (c *Config) Validate() error {
	if c.Panel.Size <= 0 {
		return errors.New("panel size must be positive")
	}
	if _, err := c.Position(); err != nil {
		return err
	}
	seen := make(map[int]bool)
	for _, item := range c.Items {
		if item.Name == "" {
			return errors.New("item without a name")
		}
		if item.ID > 0 && seen[item.ID] {
			return pkgerrors.Errorf("item id %d is used twice", item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

// Position returns the configured screen position.
func (c *Config) Position() (provider.ScreenPosition, error) {
	if c.Panel.Position == "" {
		return provider.PositionS, nil
	}
	return provider.ParseScreenPosition(c.Panel.Position)
}

// SearchDirs returns where plugin descriptions are looked for: the
// configured dirs, or xfce4/panel/plugins under every XDG data dir.
func (c *Config) SearchDirs() []factory.SearchDir {
	if len(c.Plugins.Dirs) > 0 {
		dirs := make([]factory.SearchDir, 0, len(c.Plugins.Dirs))
		for _, d := range c.Plugins.Dirs {
			data, err := pathutil.Expand(d.Data)
			if err != nil {
				data = d.Data
			}
			lib, err := pathutil.Expand(d.Lib)
			if err != nil {
				lib = d.Lib
			}
			dirs = append(dirs, factory.SearchDir{Data: data, Lib: lib})
		}
		return dirs
	}
	lib := c.Plugins.LibDir
	if lib == "" {
		lib = DefaultLibDir
	}
	var dirs []factory.SearchDir
	for _, data := range pathutil.DataDirs() {
		dirs = append(dirs, factory.SearchDir{Data: filepath.Join(data, "xfce4", "panel", "plugins"), Lib: lib})
	}
	return dirs
}

// LauncherConfig returns the launcher settings, with environment overrides
// applied.
func (c *Config) LauncherConfig() external.Config {
	return external.Config{
		WrapperPath:  c.Plugins.WrapperPath,
		QueueLimit:   env.Int(EnvQueueLimit, c.Plugins.QueueLimit),
		FlushDelay:   time.Duration(c.Plugins.FlushDelay),
		EmbedTimeout: env.Duration(EnvEmbedTimeout, time.Duration(c.Plugins.EmbedTimeout)),
	}
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}
