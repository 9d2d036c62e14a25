package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/sheetqa/internal/ai"
	cfgpkg "github.com/KaramelBytes/sheetqa/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set SheetQA configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(out, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "stream: %t\n", cfg.Stream)
		fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		fmt.Fprintf(out, "openai_api_key: %s\n", mask(cfg.OpenAIAPIKey))
		if cfg.OpenAIBaseURL != "" {
			fmt.Fprintf(out, "openai_base_url: %s\n", cfg.OpenAIBaseURL)
		}
		fmt.Fprintf(out, "request_timeout_sec: %d\n", int(cfg.RequestTimeout().Seconds()))
		fmt.Fprintf(out, "sample_rows: %d\n", cfg.SampleRows)
		fmt.Fprintf(out, "prompt_token_budget: %d\n", cfg.PromptTokenBudget)
		fmt.Fprintf(out, "history_dir: %s\n", cfg.HistoryDir)
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "cors_allowed_origins: %s\n", strings.Join(cfg.CORSAllowedOrigins, ","))
		fmt.Fprintf(out, "max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", cfg.LogFormat)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "default_provider":
			switch strings.ToLower(val) {
			case "ollama", "local":
				cfg.DefaultProvider = ai.ProviderOllama
			case "openai":
				cfg.DefaultProvider = ai.ProviderOpenAI
			case "openrouter":
				cfg.DefaultProvider = ai.ProviderOpenRouter
			default:
				return fmt.Errorf("invalid default_provider: %s (use ollama, openai or openrouter)", val)
			}
		case "default_model":
			cfg.DefaultModel = val
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid float for temperature: %w", err)
			}
			cfg.Temperature = f
		case "stream":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid bool for stream: %w", err)
			}
			cfg.Stream = b
		case "ollama_host":
			cfg.OllamaHost = val
		case "openai_api_key":
			cfg.OpenAIAPIKey = val
		case "openai_base_url":
			cfg.OpenAIBaseURL = val
		case "request_timeout_sec", "sample_rows", "prompt_token_budget", "max_upload_mb":
			i, err := strconv.Atoi(val)
			if err != nil || i <= 0 {
				return fmt.Errorf("invalid positive int for %s: %v", key, val)
			}
			switch key {
			case "request_timeout_sec":
				cfg.RequestTimeoutSec = i
			case "sample_rows":
				if i > 5 {
					return fmt.Errorf("sample_rows cannot exceed 5")
				}
				cfg.SampleRows = i
			case "prompt_token_budget":
				cfg.PromptTokenBudget = i
			case "max_upload_mb":
				cfg.MaxUploadMB = i
			}
		case "history_dir":
			cfg.HistoryDir = val
		case "server_addr":
			cfg.ServerAddr = val
		case "cors_allowed_origins":
			var origins []string
			for _, o := range strings.Split(val, ",") {
				if o = strings.TrimSpace(o); o != "" {
					origins = append(origins, o)
				}
			}
			cfg.CORSAllowedOrigins = origins
		case "log_level":
			cfg.LogLevel = val
		case "log_format":
			if val != "text" && val != "json" {
				return fmt.Errorf("invalid log_format: %s (use text or json)", val)
			}
			cfg.LogFormat = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
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
