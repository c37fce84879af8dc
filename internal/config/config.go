// Package config loads datachat settings from a yaml file, the environment
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/datachat/internal/ai"
	"github.com/KaramelBytes/datachat/internal/respond"
	"github.com/KaramelBytes/datachat/internal/sandbox"
)

// EnvPrefix prefixes every environment override, e.g. DATACHAT_MODEL.
const EnvPrefix = "DATACHAT"

// Global configuration structure.
type Global struct {
	// Oracle
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	OllamaHost  string  `mapstructure:"ollama_host" yaml:"ollama_host"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	OracleTimeoutSec int `mapstructure:"oracle_timeout_sec" yaml:"oracle_timeout_sec"`

	// Dataset profile sent with every question
	SummaryRows      int `mapstructure:"summary_rows" yaml:"summary_rows"`
	SummaryMaxTokens int `mapstructure:"summary_max_tokens" yaml:"summary_max_tokens"`

	// Execution
	SandboxMode          string `mapstructure:"sandbox_mode" yaml:"sandbox_mode"`
	SandboxTimeoutSec    int    `mapstructure:"sandbox_timeout_sec" yaml:"sandbox_timeout_sec"`
	SandboxMaxConcurrent int    `mapstructure:"sandbox_max_concurrent" yaml:"sandbox_max_concurrent"`
	SandboxWorkDir       string `mapstructure:"sandbox_work_dir" yaml:"sandbox_work_dir"`
	SandboxImage         string `mapstructure:"sandbox_image" yaml:"sandbox_image"`
	SandboxMemoryMB      int64  `mapstructure:"sandbox_memory_mb" yaml:"sandbox_memory_mb"`

	// Sessions
	MaxSessions       int `mapstructure:"max_sessions" yaml:"max_sessions"`
	SessionIdleTTLMin int `mapstructure:"session_idle_ttl_min" yaml:"session_idle_ttl_min"`

	// Transport
	Markup      string `mapstructure:"markup" yaml:"markup"`
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`

	// Logging
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" yaml:"log_json"`
}

// DefaultPath returns ~/.datachat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datachat", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datachat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ai.ProviderOpenRouter)
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("model", "openai/gpt-4.1-mini")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("ollama_host", ai.DefaultOllamaHost)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("oracle_timeout_sec", 60)

	v.SetDefault("summary_rows", 5)
	v.SetDefault("summary_max_tokens", 2000)

	v.SetDefault("sandbox_mode", sandbox.ModeInterp)
	v.SetDefault("sandbox_timeout_sec", int(sandbox.DefaultTimeout/time.Second))
	v.SetDefault("sandbox_max_concurrent", 4)
	v.SetDefault("sandbox_work_dir", filepath.Join(os.TempDir(), "datachat"))
	v.SetDefault("sandbox_image", "datachat:latest")
	v.SetDefault("sandbox_memory_mb", 512)

	v.SetDefault("max_sessions", 1000)
	v.SetDefault("session_idle_ttl_min", 120)

	v.SetDefault("markup", respond.MarkupMarkdownV2)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("journal_path", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A .env file in the working
// directory is read first and never overrides variables already set.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return &c, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Global) Validate() error {
	switch strings.ToLower(c.SandboxMode) {
	case sandbox.ModeInterp, sandbox.ModeProcess, sandbox.ModeDocker:
	default:
		return fmt.Errorf("sandbox_mode %q is not one of %s, %s, %s", c.SandboxMode, sandbox.ModeInterp, sandbox.ModeProcess, sandbox.ModeDocker)
	}
	if !respond.ValidMarkup(c.Markup) {
		return fmt.Errorf("markup %q is not one of %s, %s, %s", c.Markup, respond.MarkupMarkdownV2, respond.MarkupHTML, respond.MarkupPlain)
	}
	if !slices.Contains(ai.Providers(), c.Provider) {
		return fmt.Errorf("provider %q is not one of %s", c.Provider, strings.Join(ai.Providers(), ", "))
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.SandboxTimeoutSec <= 0 || c.OracleTimeoutSec <= 0 {
		return fmt.Errorf("sandbox_timeout_sec and oracle_timeout_sec must be > 0")
	}
	if c.SandboxMaxConcurrent < 0 || c.MaxSessions < 0 {
		return fmt.Errorf("sandbox_max_concurrent and max_sessions must be >= 0")
	}
	return nil
}

// RuntimeConfig maps the oracle settings onto ai.RuntimeConfig.
func (c *Global) RuntimeConfig() ai.RuntimeConfig {
	return ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Host:        c.OllamaHost,
	}
}

// OracleTimeout bounds one generation call.
func (c *Global) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSec) * time.Second
}

// SandboxOptions maps the execution settings onto sandbox.Options.
func (c *Global) SandboxOptions() sandbox.Options {
	return sandbox.Options{
		Mode:          strings.ToLower(c.SandboxMode),
		WorkDir:       c.SandboxWorkDir,
		Timeout:       time.Duration(c.SandboxTimeoutSec) * time.Second,
		MaxConcurrent: c.SandboxMaxConcurrent,
		Image:         c.SandboxImage,
		MemoryMB:      c.SandboxMemoryMB,
	}
}

// SessionIdleTTL is how long an untouched session survives.
func (c *Global) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMin) * time.Minute
}
