// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. WEBAUDIT_BROWSER_NO_SANDBOX.
const EnvPrefix = "WEBAUDIT"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Lighthouse LighthouseConfig `mapstructure:"lighthouse"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BrowserConfig configures the per-request headless Chrome.
type BrowserConfig struct {
	ExecPath     string        `mapstructure:"exec_path"`
	NoSandbox    bool          `mapstructure:"no_sandbox"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	Flags        []string      `mapstructure:"flags"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
}

// LighthouseConfig configures the Lighthouse CLI invocation.
type LighthouseConfig struct {
	Bin        string   `mapstructure:"bin"`
	Categories []string `mapstructure:"categories"`
	ExtraFlags []string `mapstructure:"extra_flags"`
}

// AuditConfig bounds a single audit run.
type AuditConfig struct {
	// Timeout of zero leaves the run unbounded.
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig controls tracing output.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TraceStdout bool   `mapstructure:"trace_stdout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Platforms such as Cloud Run and Heroku inject PORT.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 90*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.max_parallel", 0)
	v.SetDefault("browser.flags", []string{})
	v.SetDefault("browser.start_timeout", 10*time.Second)
	v.SetDefault("lighthouse.bin", "lighthouse")
	v.SetDefault("lighthouse.categories", []string{"performance", "accessibility", "best-practices", "seo"})
	v.SetDefault("lighthouse.extra_flags", []string{})
	v.SetDefault("audit.timeout", time.Duration(0))
	v.SetDefault("telemetry.service_name", "webaudit")
	v.SetDefault("telemetry.trace_stdout", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ReadHeaderTimeout < 0 {
		return fmt.Errorf("server.read_header_timeout must be >= 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if c.Browser.MaxParallel < 0 {
		return fmt.Errorf("browser.max_parallel must be >= 0")
	}
	if c.Browser.StartTimeout < 0 {
		return fmt.Errorf("browser.start_timeout must be >= 0")
	}
	if strings.TrimSpace(c.Lighthouse.Bin) == "" {
		return fmt.Errorf("lighthouse.bin must be set")
	}
	if len(c.Lighthouse.Categories) == 0 {
		return fmt.Errorf("lighthouse.categories must not be empty")
	}
	if c.Audit.Timeout < 0 {
		return fmt.Errorf("audit.timeout must be >= 0")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
