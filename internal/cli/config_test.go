package cli

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/keboola/go-fetch/pkg/client"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	initConfigFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	// The working directory contains no fetch.yaml
	cfg, err := LoadConfig(newFlags(t), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Logging, cfg.Logging)
	assert.Equal(t, client.RequestTimeout, cfg.Timeout)
	assert.Equal(t, client.RetriesCount, cfg.Retries)
	assert.Equal(t, client.DefaultUserAgent, cfg.UserAgent)
	assert.Empty(t, cfg.Auth)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfig_Priority(t *testing.T) {
	t.Parallel()

	configFile := filepath.Join(t.TempDir(), "fetch.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
timeout: 5s
retries: 2
user_agent: from-file
auth: file-token
headers:
  X-Api-Key: abc
logging:
  level: debug
  format: json
`), 0o600))

	// File only
	cfg, err := LoadConfig(newFlags(t, "--config", configFile), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, "from-file", cfg.UserAgent)
	assert.Equal(t, "file-token", cfg.Auth)
	assert.Equal(t, map[string]string{"x-api-key": "abc"}, cfg.Headers)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)

	// Environment overrides the file
	env := envMap(map[string]string{
		"FETCH_RETRIES":       "4",
		"FETCH_USER_AGENT":    "from-env",
		"FETCH_LOGGING_LEVEL": "warn",
	})
	cfg, err = LoadConfig(newFlags(t, "--config", configFile), env)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Retries)
	assert.Equal(t, "from-env", cfg.UserAgent)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	// Flags override the environment
	cfg, err = LoadConfig(newFlags(t, "--config", configFile, "--retries", "1", "--timeout", "1m", "-v"), env)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "from-env", cfg.UserAgent)

	// Boolean flags
	cfg, err = LoadConfig(newFlags(t, "-k", "--http2"), envMap(map[string]string{"FETCH_HTTP2": "false"}))
	require.NoError(t, err)
	assert.True(t, cfg.Insecure)
	assert.True(t, cfg.HTTP2)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	// Missing explicit config file
	_, err := LoadConfig(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")), envMap(nil))
	assert.ErrorContains(t, err, "cannot read config file")

	// Validation
	_, err = LoadConfig(newFlags(t, "--timeout", "0s"), envMap(nil))
	assert.EqualError(t, err, `invalid timeout "0s": must be positive`)

	_, err = LoadConfig(newFlags(t, "--retries", "-1"), envMap(nil))
	assert.EqualError(t, err, `invalid retries "-1": must not be negative`)

	_, err = LoadConfig(newFlags(t), envMap(map[string]string{"FETCH_LOGGING_FORMAT": "xml"}))
	assert.EqualError(t, err, `invalid log format "xml": expected "console" or "json"`)
}

func TestConfig_RetryConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Retries = 3
	cfg.Timeout = time.Minute
	retry := cfg.RetryConfig()
	assert.Equal(t, 3, retry.Count)
	assert.Equal(t, time.Minute, retry.TotalRequestTimeout)
	assert.NotNil(t, retry.Condition)

	cfg.Retries = 0
	retry = cfg.RetryConfig()
	assert.Equal(t, 0, retry.Count)
	assert.Nil(t, retry.Condition)
	assert.Equal(t, time.Minute, retry.TotalRequestTimeout)
}

func TestConfig_Transport(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Nil(t, cfg.Transport())

	cfg.Insecure = true
	transport, ok := cfg.Transport().(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)

	cfg.HTTP2 = true
	h2, ok := cfg.Transport().(*http2.Transport)
	require.True(t, ok)
	assert.True(t, h2.TLSClientConfig.InsecureSkipVerify)
}

func TestNewClient_SharedTransport(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	c, ok := NewClient(cfg, zap.NewNop(), io.Discard).(client.Client)
	require.True(t, ok)
	assert.Same(t, client.Shared().Transport(), c.Transport())

	cfg.Insecure = true
	c, ok = NewClient(cfg, zap.NewNop(), io.Discard).(client.Client)
	require.True(t, ok)
	assert.NotSame(t, client.Shared().Transport(), c.Transport())
}

func TestLoadConfig_MaxBodySize(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(newFlags(t), envMap(map[string]string{"FETCH_MAX_BODY_SIZE": "1024"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.MaxBodySize)

	cfg, err = LoadConfig(newFlags(t, "--max-body-size", "10"), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.MaxBodySize)

	_, err = LoadConfig(newFlags(t, "--max-body-size", "-1"), envMap(nil))
	assert.EqualError(t, err, `invalid max body size "-1": must not be negative`)
}
