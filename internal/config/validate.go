package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}

	if err := c.Agent.validate(c.IsProduction()); err != nil {
		return err
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}

	if c.Store.Enabled {
		if c.Store.FlushInterval <= 0 {
			return errors.New("store.flush_interval must be > 0")
		}
		if err := c.Store.Database.validate("store.database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (a *AgentConfig) validate(production bool) error {
	if a.Endpoint == "" {
		return errors.New("agent.endpoint is required")
	}
	u, err := url.Parse(a.Endpoint)
	if err != nil {
		return fmt.Errorf("agent.endpoint is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "wss":
	case "ws":
		if production {
			return errors.New("agent.endpoint must use wss in production")
		}
	default:
		return fmt.Errorf("agent.endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("agent.endpoint host is required")
	}

	if a.ConnectTimeout <= 0 {
		return errors.New("agent.connect_timeout must be > 0")
	}
	if a.ReconnectBaseDelay <= 0 {
		return errors.New("agent.reconnect_base_delay must be > 0")
	}
	if a.ReconnectMaxDelay < a.ReconnectBaseDelay {
		return fmt.Errorf("agent.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			a.ReconnectMaxDelay, a.ReconnectBaseDelay)
	}
	if a.MaxReconnectAttempts < -1 {
		return errors.New("agent.max_reconnect_attempts must be >= -1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
