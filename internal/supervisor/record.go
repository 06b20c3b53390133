// Package supervisor spawns, monitors, and restarts worker OS processes
// (spec.md §4.2).
package supervisor

import (
	"os/exec"
	"time"
)

// Status mirrors WorkerRecord.status from spec.md §3.
type Status string

const (
	StatusSpawning   Status = "spawning"
	StatusConnecting Status = "connecting"
	StatusReady      Status = "ready"
	StatusWorking    Status = "working"
	StatusDegraded   Status = "degraded"
	StatusStopping   Status = "stopping"
	StatusDead       Status = "dead"
)

// Record is the coordinator-side bookkeeping for one worker process
// (spec.md §3's WorkerRecord, minus stats_window which lives in
// perfstats).
type Record struct {
	ID             string
	Endpoint       string
	Cmd            *exec.Cmd
	Status         Status
	LastHeartbeat  time.Time
	AssignedPrompt string
	AssignedWeights map[string]float64
	RestartCount   int
}
