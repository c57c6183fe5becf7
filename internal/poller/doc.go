// Package poller implements the status poller.
//
// The agent only pushes status after a subscribe. When a consumer has not
// subscribed, the poller keeps the status cache current by issuing get_status
// on a fixed interval. Ticks are skipped while disconnected or subscribed.
package poller
