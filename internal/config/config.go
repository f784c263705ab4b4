package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main coursebot configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Session store limits
	Session SessionConfig `json:"session" mapstructure:"session"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Classifier
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Events gateway
	Events EventsConfig `json:"events" mapstructure:"events"`

	// Stats reporter
	Reporter ReporterConfig `json:"reporter" mapstructure:"reporter"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	RequestTimeout int    `json:"request_timeout" mapstructure:"request_timeout"` // seconds
}

// SessionConfig holds session store limits
type SessionConfig struct {
	MaxMessages   int `json:"max_messages" mapstructure:"max_messages"`
	MaxSessions   int `json:"max_sessions" mapstructure:"max_sessions"`
	TTLHours      int `json:"ttl_hours" mapstructure:"ttl_hours"`
	ContextWindow int `json:"context_window" mapstructure:"context_window"`
}

// TTL returns the session idle TTL as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
}

// ClassifierConfig holds classifier settings
type ClassifierConfig struct {
	// Model overrides the profile model for classification calls.
	Model string `json:"model" mapstructure:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// EventsConfig holds websocket event feed configuration
type EventsConfig struct {
	Enabled      bool `json:"enabled" mapstructure:"enabled"`
	PingInterval int  `json:"ping_interval" mapstructure:"ping_interval"` // seconds
}

// ReporterConfig holds the periodic stats reporter configuration
type ReporterConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron spec
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 60,
		},
		Session: SessionConfig{
			MaxMessages:   50,
			MaxSessions:   1000,
			TTLHours:      24,
			ContextWindow: 10,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Classifier: ClassifierConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Events: EventsConfig{
			Enabled:      true,
			PingInterval: 30,
		},
		Reporter: ReporterConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Model == "" {
			return fmt.Errorf("AI profile %s: model is required", profile.ID)
		}
		switch profile.Provider {
		case "anthropic", "openai", "gemini":
		default:
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai, gemini)", profile.ID, profile.Provider)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Session.MaxMessages <= 0 {
		return fmt.Errorf("session max_messages must be positive")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max_sessions must be positive")
	}
	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("session ttl_hours must be positive")
	}
	if c.Session.ContextWindow <= 0 {
		return fmt.Errorf("session context_window must be positive")
	}

	if c.Reporter.Enabled && c.Reporter.Schedule == "" {
		return fmt.Errorf("reporter schedule is required when the reporter is enabled")
	}

	return nil
}
