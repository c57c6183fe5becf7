// Package config loads the agent link configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing, and
// AGENT_WS_URL overrides agent.endpoint. Production deployments must use a
// wss endpoint.
package config
