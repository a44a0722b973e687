// Package config loads gateway configuration from environment variables,
// an optional YAML file, and sane defaults, using github.com/spf13/viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
)

// Config holds every configuration section the gateway needs at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Events   EventsConfig   `mapstructure:"events"`
	ChatDB   ChatDBConfig   `mapstructure:"chatDb"`
	Teams    TeamsConfig    `mapstructure:"teams"`
	Logging  logger.Config  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP/WS bind address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig controls the optional shared bearer token and localhost bypass.
type AuthConfig struct {
	Token           string `mapstructure:"token"`
	TrustLocalhost  bool   `mapstructure:"trustLocalhost"`
}

// AgentConfig controls wrapper selection defaults.
type AgentConfig struct {
	// PreferredOrder is a comma-separated list of wrapper ids, most preferred first.
	PreferredOrder []string `mapstructure:"preferredOrder"`
	WorkDir        string   `mapstructure:"workDir"`
	DefaultTimeout int      `mapstructure:"defaultTimeoutMs"`
	HealthTTLMs    int      `mapstructure:"healthTtlMs"`
}

// DockerConfig controls the optional containerized execution backend.
type DockerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
}

// EventsConfig selects the internal event-bus implementation.
type EventsConfig struct {
	Mode     string `mapstructure:"mode"` // "memory" or "nats"
	NATSURL  string `mapstructure:"natsUrl"`
	Namespace string `mapstructure:"namespace"`
}

// ChatDBConfig controls chat-history persistence.
type ChatDBConfig struct {
	// DSN == ":memory:" disables persistence entirely.
	DSN string `mapstructure:"dsn"`
}

// TeamsConfig controls the filesystem root and coordinator binary for the
// teams driver.
type TeamsConfig struct {
	BaseDir           string `mapstructure:"baseDir"`
	CoordinatorBinary string `mapstructure:"coordinatorBinary"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 18900)

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.trustLocalhost", true)

	v.SetDefault("agent.preferredOrder", []string{})
	v.SetDefault("agent.workDir", ".")
	v.SetDefault("agent.defaultTimeoutMs", 120000)
	v.SetDefault("agent.healthTtlMs", 30000)

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")

	v.SetDefault("events.mode", "memory")
	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.namespace", "")

	v.SetDefault("chatDb.dsn", ":memory:")

	v.SetDefault("teams.baseDir", "")
	v.SetDefault("teams.coordinatorBinary", "claude")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from the default locations: env vars prefixed
// PI_GATEWAY_, ./config.yaml, /etc/pi-gateway/config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath behaves like Load but also searches configPath for config.yaml.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PI_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pi-gateway/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Agent.DefaultTimeout <= 0 {
		return fmt.Errorf("agent.defaultTimeoutMs must be positive")
	}
	if cfg.Events.Mode != "memory" && cfg.Events.Mode != "nats" {
		return fmt.Errorf("events.mode must be \"memory\" or \"nats\"")
	}
	if cfg.Events.Mode == "nats" && cfg.Events.NATSURL == "" {
		return fmt.Errorf("events.natsUrl is required when events.mode is \"nats\"")
	}
	return nil
}
