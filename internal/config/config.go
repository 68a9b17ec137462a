package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig describes one upstream completion provider.
// The order of the providers list is the routing priority.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	Enabled           *bool         `yaml:"enabled"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	DailyTokenLimit   int64         `yaml:"daily_token_limit"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	APIKey            string        `yaml:"-"` // Not in YAML, loaded from env
}

// IsEnabled reports whether the provider should be registered; providers default to enabled
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// OrchestratorConfig contains routing, circuit-breaking and alerting settings
type OrchestratorConfig struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	CircuitThreshold    int           `yaml:"circuit_threshold"`
	AlertThresholds     []float64     `yaml:"alert_thresholds"`
	AlertResetPercent   float64       `yaml:"alert_reset_percent"`
}

// CacheConfig contains fallback content store settings
type CacheConfig struct {
	PrewarmLimit   int `yaml:"prewarm_limit"`
	PopularPool    int `yaml:"popular_pool"`
	SuggestedLimit int `yaml:"suggested_limit"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	AdminToken string `yaml:"-"` // Not in YAML, loaded from env
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// apiKeyEnv maps provider names to the environment variable holding their key
var apiKeyEnv = map[string]string{
	"groq":   "GROQ_API_KEY",
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// Load loads configuration from a YAML file and environment variables
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, applies defaults and loads secrets from the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	// Load sensitive config from environment variables
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		env, ok := apiKeyEnv[p.Name]
		if !ok {
			env = strings.ToUpper(p.Name) + "_API_KEY"
		}
		p.APIKey = getEnv(env, "")
	}
	cfg.Auth.AdminToken = getEnv("MENTOR_ADMIN_TOKEN", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 90 * time.Second
	}
	if c.Server.RequestsPerMinute == 0 {
		c.Server.RequestsPerMinute = 60
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/mentor.db"
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{{Name: "groq"}, {Name: "gemini"}}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
		if p.DailyTokenLimit == 0 {
			p.DailyTokenLimit = 100000
		}
	}
	if c.Orchestrator.HealthCheckInterval == 0 {
		c.Orchestrator.HealthCheckInterval = 5 * time.Minute
	}
	if c.Orchestrator.CircuitThreshold == 0 {
		c.Orchestrator.CircuitThreshold = 5
	}
	if len(c.Orchestrator.AlertThresholds) == 0 {
		c.Orchestrator.AlertThresholds = []float64{80, 90, 95, 99}
	}
	if c.Orchestrator.AlertResetPercent == 0 {
		c.Orchestrator.AlertResetPercent = 10
	}
	if c.Cache.PrewarmLimit == 0 {
		c.Cache.PrewarmLimit = 50
	}
	if c.Cache.PopularPool == 0 {
		c.Cache.PopularPool = 10
	}
	if c.Cache.SuggestedLimit == 0 {
		c.Cache.SuggestedLimit = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider: %s", p.Name)
		}
		seen[p.Name] = true
		if p.DailyTokenLimit < 0 {
			return fmt.Errorf("provider %s: daily_token_limit must not be negative", p.Name)
		}
	}
	if c.Orchestrator.HealthCheckInterval <= 0 {
		return fmt.Errorf("health_check_interval must be positive")
	}
	for _, t := range c.Orchestrator.AlertThresholds {
		if t <= 0 || t > 100 {
			return fmt.Errorf("alert threshold %v out of range (0, 100]", t)
		}
	}
	return nil
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Address returns the server address string
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
