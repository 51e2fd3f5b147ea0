package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokmz/huddle/pkg/errors"
)

const testYAML = `
server:
  addr: ":5000"
  read_timeout: 5s
signal:
  heartbeat_timeout: 60s
  allowed_origins:
    - https://meet.example.com
    - https://staging.example.com
  max_connections: 500
log:
  level: debug
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)

	c := New(WithConfigFile(cfgPath))
	require.NoError(t, c.Load())

	assert.Equal(t, ":5000", c.GetString("server.addr"))
	assert.Equal(t, 5*time.Second, c.GetDuration("server.read_timeout"))
	assert.Equal(t, 500, c.GetInt("signal.max_connections"))
	assert.Equal(t, []string{"https://meet.example.com", "https://staging.example.com"}, c.GetStringSlice("signal.allowed_origins"))
	assert.Equal(t, cfgPath, c.ConfigFileUsed())
}

func TestLoadWithNameAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, "huddle.yaml", testYAML)

	c := New(
		WithConfigName("huddle"),
		WithConfigType("yaml"),
		WithConfigPaths(dir),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, "debug", c.GetString("log.level"))
}

func TestConfigFileNotFound(t *testing.T) {
	c := New(WithConfigName("missing"), WithConfigPaths(t.TempDir()))
	err := c.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestOptionalFallsBackToDefaults(t *testing.T) {
	c := New(
		WithConfigName("missing"),
		WithConfigPaths(t.TempDir()),
		WithOptional(true),
		WithDefaults(map[string]any{"server.addr": ":5000"}),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, ":5000", c.GetString("server.addr"))
}

func TestWithEnvPrefix(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)
	t.Setenv("HUDDLE_SERVER_ADDR", ":6000")

	c := New(
		WithConfigFile(cfgPath),
		WithEnvPrefix("HUDDLE"),
		WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, ":6000", c.GetString("server.addr"))
}

func TestUnmarshal(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)
	c := New(WithConfigFile(cfgPath))
	require.NoError(t, c.Load())

	var out struct {
		Signal struct {
			HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
			MaxConnections   int           `mapstructure:"max_connections"`
		} `mapstructure:"signal"`
	}
	require.NoError(t, c.Unmarshal(&out))
	assert.Equal(t, time.Minute, out.Signal.HeartbeatTimeout)
	assert.Equal(t, 500, out.Signal.MaxConnections)

	var logSection struct {
		Level string `mapstructure:"level"`
	}
	require.NoError(t, c.UnmarshalKey("log", &logSection))
	assert.Equal(t, "debug", logSection.Level)
}

func TestSetAndIsSet(t *testing.T) {
	c := New()
	assert.False(t, c.IsSet("log.level"))
	c.Set("log.level", "warn")
	assert.True(t, c.IsSet("log.level"))
	assert.Equal(t, "warn", c.GetString("log.level"))
}

func TestOnChange(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)

	changed := make(chan struct{}, 1)
	c := New(
		WithConfigFile(cfgPath),
		WithAutoWatch(true),
		WithOnChange(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		}),
	)
	require.NoError(t, c.Load())
	defer c.Close()
	assert.True(t, c.IsWatching())

	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Replace(testYAML, "level: debug", "level: error", 1)), 0644))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange callback was not triggered within timeout")
	}
	assert.Eventually(t, func() bool { return c.GetString("log.level") == "error" }, time.Second, 10*time.Millisecond)
}

func TestStartStopWatch(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)
	c := New(WithConfigFile(cfgPath))
	require.NoError(t, c.Load())

	assert.False(t, c.IsWatching())
	c.StartWatch()
	assert.True(t, c.IsWatching())
	c.StopWatch()
	assert.False(t, c.IsWatching())
}

func TestConcurrentAccess(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)
	c := New(WithConfigFile(cfgPath))
	require.NoError(t, c.Load())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.GetString("server.addr")
		}()
		go func() {
			defer wg.Done()
			c.Set("signal.max_connections", 10)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, c.GetInt("signal.max_connections"))
}
