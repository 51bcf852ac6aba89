package types

import "time"

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the persisted summary of one generation run. FinishedAt is zero
// while the run is in progress.
type Run struct {
	ID           RunID
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       RunStatus
	SrcDirs      []string
	OutputDir    string
	Shards       int
	FilesScanned int
	FilesSkipped int
	Events       int
	Rules        int
	Error        string
}

// RunFile is one physical output file written by a run.
type RunFile struct {
	RunID    RunID
	Shard    int
	Rotation int
	Path     string
	Bytes    int64
}
