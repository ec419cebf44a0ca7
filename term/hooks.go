package term

import "github.com/darma-tasking/vt-term/epoch"

// ControlSender delivers the internal ping/echo control messages the DS
// detector uses to propagate through the engagement tree of a rooted
// epoch. Envelopes carrying these must mark themselves internal
// so they never themselves produce/consume on application epochs.
type ControlSender interface {
	SendPing(dst epoch.Node, id epoch.Id, from epoch.Node)
	SendEcho(dst epoch.Node, id epoch.Id, from epoch.Node, count uint64)
	// Broadcast delivers an epoch_terminated(id) notice to every other node
	// once the epoch's detector root (the creator of a rooted epoch, or the
	// wave root of a collective one) has declared it terminated.
	Broadcast(id epoch.Id, kind BroadcastKind)
}

// BroadcastKind distinguishes the control broadcasts a Manager emits.
type BroadcastKind int

const (
	BroadcastEpochTerminated BroadcastKind = iota
)

// Collective reduces a WaveSnapshot across every node sharing a collective
// epoch and hands the sum to cb on the node that initiated the
// reduce. Implementations are expected to deliver cb exactly once per call.
type Collective interface {
	Reduce(id epoch.Id, local WaveSnapshot, cb func(WaveSnapshot))
}

// ReadyListener is notified exactly once per node when an epoch this node
// knows about is detected globally terminated, after that epoch's own
// deferred actions have run. The runtime harness hangs its progress and
// diagnostic hooks off this.
type ReadyListener interface {
	OnEpochTerminated(id epoch.Id)
}

// ReadyListenerFunc adapts a plain function to a ReadyListener.
type ReadyListenerFunc func(epoch.Id)

func (f ReadyListenerFunc) OnEpochTerminated(id epoch.Id) { f(id) }

// Deferrer schedules fn to run as a fresh task on this node's own run loop
// rather than invoking it inline. AddAction/AddActionUnique use it so a
// callback registered against an epoch that is already terminated is
// "scheduled on the next task step, not invoked synchronously", exactly
// like one registered before termination.
type Deferrer interface {
	Defer(fn func())
}

// DeferrerFunc adapts a plain function to a Deferrer.
type DeferrerFunc func(func())

func (f DeferrerFunc) Defer(fn func()) { f(fn) }
