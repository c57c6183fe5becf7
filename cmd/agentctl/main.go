// agentctl drives an ocean agent over its WebSocket control link.
//
// Usage:
//
//	agentctl watch --url ws://localhost:8765
//	agentctl set-target 21.3 -157.8 50 --time 2024-01-01T12:00:00Z
//	agentctl serve --config configs/agentlink.yaml
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
