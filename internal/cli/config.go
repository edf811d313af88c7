package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/go-fetch/pkg/client"
)

const (
	envPrefix      = "FETCH"
	configName     = "fetch"
	configType     = "yaml"
	flagConfigFile = "config"
)

// Config of the CLI, loaded from flags, FETCH_* environment variables and the fetch.yaml file, in this order of priority.
type Config struct {
	Logging   LoggingConfig     `mapstructure:"logging"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Retries   int               `mapstructure:"retries"`
	UserAgent string            `mapstructure:"user_agent"`
	Auth      string            `mapstructure:"auth"`
	Headers   map[string]string `mapstructure:"headers"`
	Verbose   bool              `mapstructure:"verbose"`
	Insecure  bool              `mapstructure:"insecure"`
	HTTP2     bool              `mapstructure:"http2"`
	Dump      bool              `mapstructure:"dump"`

	// MaxBodySize of the decoded response, zero means no limit.
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// flagKeys maps persistent flags to the config keys.
var flagKeys = map[string]string{
	"timeout":       "timeout",
	"retries":       "retries",
	"user-agent":    "user_agent",
	"auth":          "auth",
	"verbose":       "verbose",
	"insecure":      "insecure",
	"http2":         "http2",
	"dump":          "dump",
	"max-body-size": "max_body_size",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
}

func DefaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		Timeout:   client.RequestTimeout,
		Retries:   client.RetriesCount,
		UserAgent: client.DefaultUserAgent,
	}
}

// initConfigFlags registers the persistent flags, see flagKeys.
func initConfigFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()
	flags.String(flagConfigFile, "", `path to the config file (default "./fetch.yaml", if exists)`)
	flags.Duration("timeout", def.Timeout, "total request timeout, including retries")
	flags.Int("retries", def.Retries, "maximum number of retries")
	flags.String("user-agent", def.UserAgent, "User-Agent header")
	flags.String("auth", "", "bearer token")
	flags.BoolP("verbose", "v", false, "log request phases")
	flags.BoolP("insecure", "k", false, "do not verify the server certificate")
	flags.Bool("http2", false, "force HTTP2 protocol")
	flags.Bool("dump", false, "dump HTTP traffic to stderr, sensitive headers are masked")
	flags.Int64("max-body-size", 0, "maximum size of the decoded response body in bytes, 0 means no limit")
	flags.String("log-level", def.Logging.Level, "log level (debug|info|warn|error)")
	flags.String("log-format", def.Logging.Format, "log format (console|json)")
}

// LoadConfig merges defaults, the config file, the environment and flags set by the user.
func LoadConfig(flags *pflag.FlagSet, lookupEnv func(string) (string, bool)) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("retries", def.Retries)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("auth", "")
	v.SetDefault("verbose", false)
	v.SetDefault("insecure", false)
	v.SetDefault("http2", false)
	v.SetDefault("dump", false)
	v.SetDefault("max_body_size", 0)
	v.SetDefault("headers", map[string]string{})

	// Config file
	configFile, _ := flags.GetString(flagConfigFile)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	// Environment, for example FETCH_LOGGING_LEVEL
	for _, key := range v.AllKeys() {
		if value, found := lookupEnv(envName(key)); found {
			v.Set(key, value)
		}
	}

	// Flags set by the user
	for name, key := range flagKeys {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			v.Set(key, flag.Value.String())
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf(`invalid timeout "%s": must be positive`, c.Timeout)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf(`invalid max body size "%d": must not be negative`, c.MaxBodySize)
	}
	if c.Retries < 0 {
		return fmt.Errorf(`invalid retries "%d": must not be negative`, c.Retries)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf(`invalid log format "%s": expected "console" or "json"`, c.Logging.Format)
	}
	return nil
}

// Transport creates the HTTP transport for the config.
// It returns nil for the default settings, the transport of the client.Shared is used then.
func (c Config) Transport() http.RoundTripper {
	if !c.Insecure && !c.HTTP2 {
		return nil
	}
	transportCfg := client.DefaultTransportConfig()
	transportCfg.Insecure = c.Insecure
	if c.HTTP2 {
		return client.NewHTTP2Transport(transportCfg)
	}
	return client.NewTransport(transportCfg)
}

// RetryConfig maps the config to the client retry configuration.
func (c Config) RetryConfig() client.RetryConfig {
	if c.Retries == 0 {
		v := client.NoRetry()
		v.TotalRequestTimeout = c.Timeout
		return v
	}
	v := client.DefaultRetry()
	v.Count = c.Retries
	v.TotalRequestTimeout = c.Timeout
	return v
}
