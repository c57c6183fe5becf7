// Package geo validates and formats geographic targets for the agent and
// computes great-circle distances between positions.
//
// All functions are pure.
package geo
