// Package common provides ambient utilities shared by the orchestrator and
// worker binaries: leveled logging and a generic worker pool.
package common

// Version is the current version of the attrforge/swarm orchestrator.
const Version = "0.1.0"
