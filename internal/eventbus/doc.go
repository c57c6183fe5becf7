// Package eventbus decouples the control link from its consumers.
//
// Handlers are registered per event name and invoked synchronously in
// registration order. One misbehaving handler cannot break delivery to the
// others: panics are recovered and logged.
package eventbus
