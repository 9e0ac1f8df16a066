package backup

import (
	"time"

	"compose-backup/internal/discovery"
)

// Timestamp layouts used for the dated directory and archive file names.
// The fixed-width date stamp makes lexicographic order chronological.
const (
	DateStampLayout = "2006-01-02"
	TimestampLayout = "2006-01-02_15-04-05"
)

// Outcome classifies the result of backing up one folder. The numeric order
// is the severity ranking: when several failures hit the same folder, the
// highest value wins. A failed restart is the worst case because it can
// leave a service down.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeContainerStopFailed
	OutcomeArchiveFailed
	OutcomeContainerStartFailed
)

// String implements fmt.Stringer
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeContainerStopFailed:
		return "container_stop_failed"
	case OutcomeArchiveFailed:
		return "archive_failed"
	case OutcomeContainerStartFailed:
		return "container_start_failed"
	default:
		return "unknown"
	}
}

// Worse returns the more severe of two outcomes
func (o Outcome) Worse(other Outcome) Outcome {
	if other > o {
		return other
	}
	return o
}

// FolderBackupResult is the per-folder record consumed by the run summary
type FolderBackupResult struct {
	Entry       discovery.ProjectEntry
	ArchivePath string
	Outcome     Outcome
	Errors      []error
	Duration    time.Duration
}

// Failed reports whether the folder had any failure
func (r *FolderBackupResult) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// BackupRun aggregates everything produced by one lifecycle invocation
type BackupRun struct {
	ID        string
	DateStamp string
	BackupDir string
	StartedAt time.Time
	Duration  time.Duration

	Results []FolderBackupResult

	// ScriptConfigArchive is the fixed final entry archiving the
	// configuration artifacts; empty when that archive failed.
	ScriptConfigArchive string
	ScriptConfigErr     error

	Rotation *RotationResult
}

// WorstOutcome returns the most severe outcome across all folders
func (r *BackupRun) WorstOutcome() Outcome {
	worst := OutcomeSuccess
	for i := range r.Results {
		worst = worst.Worse(r.Results[i].Outcome)
	}
	return worst
}

// CountByOutcome tallies folder results per outcome class
func (r *BackupRun) CountByOutcome() map[Outcome]int {
	counts := make(map[Outcome]int)
	for i := range r.Results {
		counts[r.Results[i].Outcome]++
	}
	return counts
}
