// Package database opens the PostgreSQL pool that backs the latest-status
// snapshot store.
package database
