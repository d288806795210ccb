package runner

import (
	"fmt"

	"github.com/ggoodman/synf/supervisor"
)

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventBuildSkipped EventKind = iota
	EventBuildOK
	EventBuildFailed
	// EventRestartAborted is emitted when a failed build leaves the running
	// server in place.
	EventRestartAborted
	EventChildStopped
	EventSpawnOK
	EventSpawnFailed
	EventGenerationStarted
	EventGenerationEnded
)

func (k EventKind) String() string {
	switch k {
	case EventBuildSkipped:
		return "build_skipped"
	case EventBuildOK:
		return "build_ok"
	case EventBuildFailed:
		return "build_failed"
	case EventRestartAborted:
		return "restart_aborted"
	case EventChildStopped:
		return "child_stopped"
	case EventSpawnOK:
		return "spawn_ok"
	case EventSpawnFailed:
		return "spawn_failed"
	case EventGenerationStarted:
		return "generation_started"
	case EventGenerationEnded:
		return "generation_ended"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes something the runner did.
type Event struct {
	Kind       EventKind
	Generation int
	// PID is set for events about a specific server process.
	PID int
	// Outcome is set for EventChildStopped.
	Outcome supervisor.Outcome
	// Err is set for failures and for EventGenerationEnded.
	Err error
}
