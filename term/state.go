package term

import "github.com/darma-tasking/vt-term/epoch"

// lifecyclePhase tracks where an epoch record sits in the termination
// pipeline:
//
//	created -> locallyReady -> detectorTerminated -> allChildrenTerminated
//	        -> actionsFired -> windowed -> released
//
// Phases only move forward; nothing here ever un-terminates an epoch.
type lifecyclePhase int

const (
	phaseCreated lifecyclePhase = iota
	phaseLocallyReady
	phaseDetectorTerminated
	phaseAllChildrenTerminated
	phaseActionsFired
	phaseWindowed
	phaseReleased
)

func (p lifecyclePhase) String() string {
	switch p {
	case phaseCreated:
		return "created"
	case phaseLocallyReady:
		return "locally-ready"
	case phaseDetectorTerminated:
		return "detector-terminated"
	case phaseAllChildrenTerminated:
		return "all-children-terminated"
	case phaseActionsFired:
		return "actions-fired"
	case phaseWindowed:
		return "windowed"
	case phaseReleased:
		return "released"
	default:
		return "unknown"
	}
}

// epochRecord is the manager's bookkeeping for a single live epoch: the
// detector state for whichever algorithm its category selects, the deferred
// actions waiting on termination, and the nested-epoch parent/child
// relationships used to hold a parent open until its children finish.
type epochRecord struct {
	id    epoch.Id
	label string
	phase lifecyclePhase

	// finishedLocally records that this node called FinishedEpoch(id): the
	// local commitment not to originate further work under id. Required
	// (together with the detector) before termination can be declared.
	finishedLocally bool

	// broadcasted records that this node has already sent (if root/creator)
	// or does not need to resend the epoch_terminated broadcast, so a
	// re-entrant or duplicate detector convergence notice never produces
	// more than one broadcast.
	broadcasted bool

	// children are the epochs this one waits for: its own firing is held
	// until every child has fired. parents is the reverse index, so a
	// child's firing can find and unblock everything waiting on it without
	// the records owning each other (back-edges are lookup keys only).
	children        map[epoch.Id]struct{}
	parents         map[epoch.Id]struct{}
	openChildren    int
	actions         []func()
	uniqueActions   map[string]func()
	firedActionKeys map[string]struct{}

	ds   *dsState
	wave *waveState
}

func newEpochRecord(id epoch.Id, label string) *epochRecord {
	return &epochRecord{
		id:            id,
		label:         label,
		phase:         phaseCreated,
		children:      make(map[epoch.Id]struct{}),
		parents:       make(map[epoch.Id]struct{}),
		uniqueActions: make(map[string]func()),
	}
}

func (r *epochRecord) detectorTerminated() bool {
	if r.ds != nil {
		return r.ds.terminated()
	}
	if r.wave != nil {
		return r.wave.terminated()
	}
	return false
}
