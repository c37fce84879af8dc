package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/datachat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set datachat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider: %s\n", cfg.Provider)
		fmt.Fprintf(out, "api_key: %s\n", mask(cfg.APIKey))
		if cfg.BaseURL != "" {
			fmt.Fprintf(out, "base_url: %s\n", cfg.BaseURL)
		}
		fmt.Fprintf(out, "model: %s\n", cfg.Model)
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		if cfg.Provider == "ollama" {
			fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		}
		fmt.Fprintf(out, "oracle_timeout_sec: %d\n", cfg.OracleTimeoutSec)
		fmt.Fprintf(out, "summary_rows: %d\n", cfg.SummaryRows)
		fmt.Fprintf(out, "sandbox_mode: %s\n", cfg.SandboxMode)
		fmt.Fprintf(out, "sandbox_timeout_sec: %d\n", cfg.SandboxTimeoutSec)
		fmt.Fprintf(out, "sandbox_max_concurrent: %d\n", cfg.SandboxMaxConcurrent)
		fmt.Fprintf(out, "sandbox_work_dir: %s\n", cfg.SandboxWorkDir)
		if cfg.SandboxMode == "docker" {
			fmt.Fprintf(out, "sandbox_image: %s\n", cfg.SandboxImage)
			fmt.Fprintf(out, "sandbox_memory_mb: %d\n", cfg.SandboxMemoryMB)
		}
		fmt.Fprintf(out, "max_sessions: %d\n", cfg.MaxSessions)
		fmt.Fprintf(out, "session_idle_ttl_min: %d\n", cfg.SessionIdleTTLMin)
		fmt.Fprintf(out, "markup: %s\n", cfg.Markup)
		fmt.Fprintf(out, "listen_addr: %s\n", cfg.ListenAddr)
		if cfg.JournalPath != "" {
			fmt.Fprintf(out, "journal_path: %s\n", cfg.JournalPath)
		}
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := applySetting(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s\n", args[0])
		return nil
	},
}

// applySetting assigns one key of c from its string form.
func applySetting(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}
	var err error
	switch key {
	case "provider":
		c.Provider = strings.ToLower(val)
	case "api_key":
		c.APIKey = val
	case "base_url":
		c.BaseURL = val
	case "model":
		c.Model = val
	case "ollama_host":
		c.OllamaHost = val
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil {
			return fmt.Errorf("invalid temperature: %w", perr)
		}
		c.Temperature = f
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "oracle_timeout_sec":
		c.OracleTimeoutSec, err = atoi()
	case "summary_rows":
		c.SummaryRows, err = atoi()
	case "summary_max_tokens":
		c.SummaryMaxTokens, err = atoi()
	case "sandbox_mode":
		c.SandboxMode = strings.ToLower(val)
	case "sandbox_timeout_sec":
		c.SandboxTimeoutSec, err = atoi()
	case "sandbox_max_concurrent":
		c.SandboxMaxConcurrent, err = atoi()
	case "sandbox_work_dir":
		c.SandboxWorkDir = val
	case "sandbox_image":
		c.SandboxImage = val
	case "sandbox_memory_mb":
		var n int
		n, err = atoi()
		c.SandboxMemoryMB = int64(n)
	case "max_sessions":
		c.MaxSessions, err = atoi()
	case "session_idle_ttl_min":
		c.SessionIdleTTLMin, err = atoi()
	case "markup":
		c.Markup = strings.ToLower(val)
	case "listen_addr":
		c.ListenAddr = val
	case "journal_path":
		c.JournalPath = val
	case "log_level":
		c.LogLevel = val
	case "log_json":
		c.LogJSON, err = strconv.ParseBool(val)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
