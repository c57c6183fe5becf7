package config

import "time"

// Environment names accepted in the environment field.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration for an agent link.
type Config struct {
	Environment string       `yaml:"environment"`
	Agent       AgentConfig  `yaml:"agent"`
	Poller      PollerConfig `yaml:"poller"`
	Store       StoreConfig  `yaml:"store"`
	Health      HealthConfig `yaml:"health"`
	Log         LogConfig    `yaml:"log"`
}

// AgentConfig holds the control-link settings.
type AgentConfig struct {
	Endpoint             string        `yaml:"endpoint"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"` // -1 disables automatic reconnect
	AutoSubscribe        bool          `yaml:"auto_subscribe"`
}

// PollerConfig holds the get_status poller settings.
type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// StoreConfig holds the latest-status snapshot store settings.
type StoreConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the serve command's HTTP listener settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// IsProduction reports whether the production rules apply.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
