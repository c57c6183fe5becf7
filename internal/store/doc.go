// Package store persists the most recent agent status to PostgreSQL.
//
// SnapshotWriter keeps one row per endpoint in agent_status_latest. Status
// events arriving between flushes are coalesced; only the newest is written.
// No history is kept.
package store
