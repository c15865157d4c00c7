package panel

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/xfce4-panel/pkg/factory"
	"github.com/skycoin/xfce4-panel/pkg/provider"
)

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, time.Duration(d))
	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, time.Duration(d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))

	raw, err := json.Marshal(Duration(15 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"15s"`, string(raw))
}

func TestReadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "panel-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	path := filepath.Join(dir, "panel.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{
		"panel": {"size": 24, "position": "n"},
		"items": [{"name": "clock", "id": 3}],
		"plugins": {"embed_timeout": "2s"}
	}`), 0644))

	conf, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 24, conf.Panel.Size)
	assert.Equal(t, []ItemConfig{{Name: "clock", ID: 3}}, conf.Items)
	assert.Equal(t, 2*time.Second, time.Duration(conf.Plugins.EmbedTimeout))
	assert.Equal(t, Duration(DefaultShutdownTimeout), conf.ShutdownTimeout, "defaults fill the gaps")
	pos, err := conf.Position()
	require.NoError(t, err)
	assert.Equal(t, provider.PositionN, pos)

	_, err = ReadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tt := []struct {
		name string
		edit func(c *Config)
	}{
		{"size", func(c *Config) { c.Panel.Size = 0 }},
		{"position", func(c *Config) { c.Panel.Position = "diagonal" }},
		{"unnamed_item", func(c *Config) { c.Items = []ItemConfig{{ID: 1}} }},
		{"duplicate_id", func(c *Config) { c.Items = []ItemConfig{{Name: "a", ID: 1}, {Name: "b", ID: 1}} }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.edit(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_SearchDirs(t *testing.T) {
	c := DefaultConfig()
	c.Plugins.Dirs = []factory.SearchDir{{Data: "/opt/share", Lib: "/opt/lib"}}
	assert.Equal(t, c.Plugins.Dirs, c.SearchDirs())

	c.Plugins.Dirs = nil
	c.Plugins.LibDir = "/opt/lib"
	require.NoError(t, os.Setenv("XDG_DATA_DIRS", "/a:/b"))
	defer os.Unsetenv("XDG_DATA_DIRS") // nolint: errcheck
	dirs := c.SearchDirs()
	require.NotEmpty(t, dirs)
	last := dirs[len(dirs)-1]
	assert.Equal(t, factory.SearchDir{Data: "/b/xfce4/panel/plugins", Lib: "/opt/lib"}, last)
}

func TestConfig_LauncherConfig(t *testing.T) {
	c := DefaultConfig()
	lc := c.LauncherConfig()
	assert.Equal(t, 64, lc.QueueLimit)
	assert.Equal(t, 15*time.Second, lc.EmbedTimeout)

	require.NoError(t, os.Setenv(EnvEmbedTimeout, "3s"))
	require.NoError(t, os.Setenv(EnvQueueLimit, "128"))
	defer func() {
		os.Unsetenv(EnvEmbedTimeout) // nolint: errcheck
		os.Unsetenv(EnvQueueLimit)   // nolint: errcheck
	}()
	lc = c.LauncherConfig()
	assert.Equal(t, 3*time.Second, lc.EmbedTimeout)
	assert.Equal(t, 128, lc.QueueLimit)
}
