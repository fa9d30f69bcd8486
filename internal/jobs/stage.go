package jobs

// Stage is a phase of a search job.
type Stage string

const (
	StageStarting    Stage = "starting"
	StageDiscovering Stage = "discovering"
	StageFetching    Stage = "fetching"
	StageSummarizing Stage = "summarizing"
	StagePersisting  Stage = "persisting"
	StageCompleted   Stage = "completed"
	StageCancelling  Stage = "cancelling"
	StageCancelled   Stage = "cancelled"
	StageFailed      Stage = "failed"
)

var forward = map[Stage]Stage{
	StageStarting:    StageDiscovering,
	StageDiscovering: StageFetching,
	StageFetching:    StageSummarizing,
	StageSummarizing: StagePersisting,
	StagePersisting:  StageCompleted,
}

// IsTerminal reports whether no further transitions are possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageFailed
}

// CanTransition reports whether a job may move from s to next. Cancelling
// jobs keep their cancelling stage while the run finishes whatever phase
// cannot be interrupted, so they may still reach any terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StageCancelling:
		return s != StageCancelling
	case StageCancelled, StageFailed:
		return true
	}
	if s == StageCancelling {
		return next == StageCompleted || next.inFlight()
	}
	return forward[s] == next
}

func (s Stage) inFlight() bool {
	_, ok := forward[s]
	return ok && s != StageStarting
}
