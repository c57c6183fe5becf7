package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEnvironment          = EnvDevelopment
	DefaultEndpoint             = "ws://localhost:8765"
	DefaultConnectTimeout       = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultPollInterval         = 5 * time.Second
	DefaultFlushInterval        = 2 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultHealthPort           = 8080
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}

	// Agent defaults
	if c.Agent.Endpoint == "" {
		c.Agent.Endpoint = DefaultEndpoint
	}
	if c.Agent.ConnectTimeout == 0 {
		c.Agent.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Agent.WriteTimeout == 0 {
		c.Agent.WriteTimeout = DefaultWriteTimeout
	}
	if c.Agent.PingInterval == 0 {
		c.Agent.PingInterval = DefaultPingInterval
	}
	if c.Agent.PingTimeout == 0 {
		c.Agent.PingTimeout = DefaultPingTimeout
	}
	if c.Agent.ReconnectBaseDelay == 0 {
		c.Agent.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Agent.ReconnectMaxDelay == 0 {
		c.Agent.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Agent.MaxReconnectAttempts == 0 {
		c.Agent.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}

	// Store defaults
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultFlushInterval
	}
	applyDBDefaults(&c.Store.Database)

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
