package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int    `koanf:"port"`
		MetricsPath string `koanf:"metrics_path"`
	} `koanf:"server"`

	Classifier struct {
		Provider          string  `koanf:"provider"`
		APIKey            string  `koanf:"api_key"`
		BaseURL           string  `koanf:"base_url"`
		Model             string  `koanf:"model"`
		Temperature       float64 `koanf:"temperature"`
		MaxTokens         int     `koanf:"max_tokens"`
		DefaultConfidence float64 `koanf:"default_confidence"`
		TimeoutSeconds    int     `koanf:"timeout_seconds"`
		CallsPerSecond    float64 `koanf:"calls_per_second"`
	} `koanf:"classifier"`

	Handoff struct {
		ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	} `koanf:"handoff"`

	Context struct {
		MessageCap        int `koanf:"message_cap"`
		RetentionHours    int `koanf:"retention_hours"`
		SweepIntervalMins int `koanf:"sweep_interval_mins"`
	} `koanf:"context"`

	Learning struct {
		HistoryCap int `koanf:"history_cap"`
	} `koanf:"learning"`

	Audit struct {
		TimeoutSeconds int    `koanf:"timeout_seconds"`
		FallbackDir    string `koanf:"fallback_dir"`
	} `koanf:"audit"`

	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
	} `koanf:"auth"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":                   8090,
		"server.metrics_path":           "/metrics",
		"classifier.provider":           "openai",
		"classifier.model":              "gpt-4o-mini",
		"classifier.temperature":        0.1,
		"classifier.max_tokens":         300,
		"classifier.default_confidence": 0.9,
		"classifier.timeout_seconds":    10,
		"classifier.calls_per_second":   5.0,
		"handoff.confidence_threshold":  0.7,
		"context.message_cap":           50,
		"context.retention_hours":       24,
		"context.sweep_interval_mins":   60,
		"learning.history_cap":          1000,
		"audit.timeout_seconds":         2,
		"audit.fallback_dir":            "./audit_fallback",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./triagecore.toml", "$HOME/.triagecore.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix TRIAGECORE_
	k.Load(env.Provider("TRIAGECORE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TRIAGECORE_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# TriageCore Configuration

[server]
port = 8090

[classifier]
provider = "openai"
api_key = "your-api-key"
model = "gpt-4o-mini"
temperature = 0.1
default_confidence = 0.9
timeout_seconds = 10

[handoff]
confidence_threshold = 0.7

[context]
message_cap = 50
retention_hours = 24
sweep_interval_mins = 60

[learning]
history_cap = 1000

[audit]
timeout_seconds = 2
fallback_dir = "./audit_fallback"

[auth]
jwt_secret = "change-me"

[database]
url = ""
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Classifier.Provider == "" {
		return fmt.Errorf("classifier provider is required")
	}
	if config.Classifier.Provider != "ollama" && config.Classifier.APIKey == "" {
		return fmt.Errorf("classifier api_key is required for provider %s", config.Classifier.Provider)
	}
	if config.Handoff.ConfidenceThreshold <= 0 || config.Handoff.ConfidenceThreshold > 1 {
		return fmt.Errorf("handoff confidence_threshold must be in (0, 1]")
	}
	if config.Classifier.DefaultConfidence <= 0 || config.Classifier.DefaultConfidence > 1 {
		return fmt.Errorf("classifier default_confidence must be in (0, 1]")
	}
	if config.Context.MessageCap <= 0 {
		return fmt.Errorf("context message_cap must be positive")
	}
	if config.Learning.HistoryCap <= 0 {
		return fmt.Errorf("learning history_cap must be positive")
	}
	// An empty HMAC key would verify attacker-signed tokens.
	if strings.TrimSpace(config.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	return nil
}

// ClassifierTimeout returns the classifier timeout as a duration.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// AuditTimeout returns the audit write timeout as a duration.
func (c *Config) AuditTimeout() time.Duration {
	return time.Duration(c.Audit.TimeoutSeconds) * time.Second
}

// ContextRetention returns the conversation retention window.
func (c *Config) ContextRetention() time.Duration {
	return time.Duration(c.Context.RetentionHours) * time.Hour
}

// SweepInterval returns how often the context sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Context.SweepIntervalMins) * time.Minute
}
