package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	Stream          bool    `mapstructure:"stream" yaml:"stream"`

	// Question answering
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	SampleRows        int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	PromptTokenBudget int    `mapstructure:"prompt_token_budget" yaml:"prompt_token_budget"`
	HistoryDir        string `mapstructure:"history_dir" yaml:"history_dir"`

	// OpenAI-compatible runtimes
	OpenAIAPIKey  string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// HTTP API
	ServerAddr         string   `mapstructure:"server_addr" yaml:"server_addr"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	MaxUploadMB        int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// RequestTimeout is the bound on one external text-generation call.
func (c *Global) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Dir returns ~/.sheetqa.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".sheetqa"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.sheetqa/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
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

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("SHEETQA")
	v.AutomaticEnv()

	v.SetDefault("default_provider", "ollama")
	v.SetDefault("default_model", "llama3")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("stream", false)
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("sample_rows", 5)
	v.SetDefault("prompt_token_budget", 6000)
	v.SetDefault("history_dir", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 2)
	v.SetDefault("retry_base_delay_ms", 200)
	v.SetDefault("retry_max_delay_ms", 1000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	// HTTP API defaults
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("cors_allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.HistoryDir == "" {
		c.HistoryDir = filepath.Join(dir, "history")
	}
	// the prompt never carries more than five sample rows
	if c.SampleRows <= 0 || c.SampleRows > 5 {
		c.SampleRows = 5
	}
	return &c, nil
}
