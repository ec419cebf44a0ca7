package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/term"
)

// soloSender is a single-node term.ControlSender: chains and chain sets in
// these tests never actually exchange application messages, so every
// rooted epoch they open terminates the instant it is finished and no
// control traffic ever needs to go anywhere.
type soloSender struct{}

func (soloSender) SendPing(dst epoch.Node, id epoch.Id, from epoch.Node)           {}
func (soloSender) SendEcho(dst epoch.Node, id epoch.Id, from epoch.Node, n uint64) {}
func (soloSender) Broadcast(id epoch.Id, kind term.BroadcastKind)                  {}

// soloCollective reduces over a single node: the sum is just that node's
// own local snapshot.
type soloCollective struct{}

func (soloCollective) Reduce(id epoch.Id, local term.WaveSnapshot, cb func(term.WaveSnapshot)) {
	cb(local)
}

func newSoloManager() *term.Manager {
	return term.NewManager(0, soloSender{}, soloCollective{}, epoch.NewWindow())
}

// TestDependentSendChainFIFOOrder: three steps added to a
// single chain must release in the order they were added, even though all
// three epochs are created up front before any of them terminates.
func TestDependentSendChainFIFOOrder(t *testing.T) {
	mgr := newSoloManager()
	chain := NewDependentSendChain(mgr)

	var order []int
	pending := make([]*PendingSend, 3)
	epochs := make([]epoch.Id, 3)
	for i := range pending {
		i := i
		pending[i] = NewPendingSend(func() { order = append(order, i) })
		epochs[i] = mgr.MakeEpochRooted(epoch.CategoryDS, "chain-step")
	}

	for i := range pending {
		chain.Add(epochs[i], pending[i])
	}
	// The first step's gate is the chain's bootstrap epoch, which is
	// already terminated, so it releases at Add time; the rest stay gated
	// on their predecessors.
	require.Equal(t, []int{0}, order)

	for i := range epochs {
		mgr.FinishedEpoch(epochs[i])
	}

	require.Equal(t, []int{0, 1, 2}, order)
	require.True(t, chain.IsTerminated())
}

// TestDependentSendChainHoldsLaterStepsOpen: finishing a later step's
// epoch before an earlier one must not let it complete (or release) out of
// order; the chain nests each new epoch on its predecessor.
func TestDependentSendChainHoldsLaterStepsOpen(t *testing.T) {
	mgr := newSoloManager()
	chain := NewDependentSendChain(mgr)

	var order []int
	e1 := mgr.MakeEpochRooted(epoch.CategoryDS, "step-1")
	e2 := mgr.MakeEpochRooted(epoch.CategoryDS, "step-2")
	chain.Add(e1, NewPendingSend(func() { order = append(order, 1) }))
	chain.Add(e2, NewPendingSend(func() { order = append(order, 2) }))

	mgr.FinishedEpoch(e2)
	require.False(t, mgr.IsEpochTerminated(e2), "a later step cannot terminate before its predecessor")
	require.Equal(t, []int{1}, order)

	mgr.FinishedEpoch(e1)
	require.Equal(t, []int{1, 2}, order)
	require.True(t, mgr.IsEpochTerminated(e2))
	require.True(t, chain.IsTerminated())
}

// TestDependentSendChainDoneResetsSentinel checks that Done() leaves the
// chain immediately terminated and ready for a fresh cycle of steps.
func TestDependentSendChainDoneResetsSentinel(t *testing.T) {
	mgr := newSoloManager()
	chain := NewDependentSendChain(mgr)
	require.True(t, chain.IsTerminated(), "a freshly constructed chain has nothing pending")

	released := false
	e := mgr.MakeEpochRooted(epoch.CategoryDS, "one-step")
	chain.Add(e, NewPendingSend(func() { released = true }))
	require.True(t, released, "the first link's gate is the already-terminated bootstrap epoch")
	require.False(t, chain.IsTerminated(), "the chain now waits on the step's own epoch")

	mgr.FinishedEpoch(e)
	require.True(t, chain.IsTerminated())

	chain.Done()
	require.True(t, chain.IsTerminated())
}

// TestChainSetNextStepRunsEachKeyIndependently: every tracked key gets its
// own fresh rooted epoch, and each key's pending send is released through
// its own chain.
func TestChainSetNextStepRunsEachKeyIndependently(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[int](mgr, Local)
	set.AddIndex(1)
	set.AddIndex(2)

	released := map[int]bool{}
	epochByKey := map[int]epoch.Id{}
	set.NextStep("step", func(k int) *PendingSend {
		epochByKey[k] = mgr.Current()
		return NewPendingSend(func() { released[k] = true })
	})

	require.Len(t, epochByKey, 2)
	require.NotEqual(t, epochByKey[1], epochByKey[2], "each key gets its own fresh epoch")

	// Each chain's bootstrap sentinel epoch is already terminated, so with
	// no prior step queued, both releases happen the instant NextStep adds
	// them to their respective chains.
	require.True(t, released[1])
	require.True(t, released[2])
}

// TestChainSetRemoveIndexRejectsPendingWork covers the ChainSetMisuse
// error path: removing a key whose chain has not terminated is a
// programmer error.
func TestChainSetRemoveIndexRejectsPendingWork(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[string](mgr, Local)
	set.AddIndex("k")

	e := mgr.MakeEpochRooted(epoch.CategoryDS, "pending")
	mgr.PushEpoch(e)
	link := NewPendingSend(func() {})
	mgr.PopEpoch()
	set.chains["k"].Add(e, link)

	err := set.RemoveIndex("k")
	require.Error(t, err)
	require.IsType(t, &ChainSetMisuseError{}, err)

	mgr.FinishedEpoch(e)
	require.NoError(t, set.RemoveIndex("k"))
}

func TestChainSetAddIndexRejectsDuplicate(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[string](mgr, Local)
	set.AddIndex("k")
	require.Panics(t, func() { set.AddIndex("k") })
}

// TestChainSetNextStepCollectiveSharesOneEpoch: every tracked key's step
// runs under the same collective epoch, and every chain advances to it.
func TestChainSetNextStepCollectiveSharesOneEpoch(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[int](mgr, Local)
	set.AddIndex(1)
	set.AddIndex(2)

	ran := map[int]bool{}
	var shared epoch.Id
	set.NextStepCollective("collective-step", func(k int) *PendingSend {
		shared = mgr.Current()
		return NewPendingSend(func() { ran[k] = true })
	})

	require.False(t, shared.IsRooted(), "collective steps run under a collective epoch")
	require.True(t, ran[1])
	require.True(t, ran[2])
	require.True(t, mgr.IsEpochTerminated(shared))
	for _, chain := range set.chains {
		require.True(t, chain.IsTerminated())
	}
}

// TestMergeStepCollectiveMultipliesBothContributions: a
// step that depends on two chain sets should only be visible once both
// sets' prior steps have terminated, and the merged step's side effect
// should reflect both inputs.
func TestMergeStepCollectiveMultipliesBothContributions(t *testing.T) {
	mgr := newSoloManager()
	a := NewChainSet[int](mgr, Local)
	b := NewChainSet[int](mgr, Local)
	for _, k := range []int{0, 1, 2} {
		a.AddIndex(k)
		b.AddIndex(k)
	}

	accum := map[int]int{}
	a.NextStep("a-contrib", func(k int) *PendingSend {
		return NewPendingSend(func() { accum[k] += 2 })
	})
	b.NextStep("b-contrib", func(k int) *PendingSend {
		return NewPendingSend(func() { accum[k] *= 3 })
	})

	err := MergeStepCollective("merge", mgr, a, b, func(k int) *PendingSend {
		return NewPendingSend(func() { accum[k] += 100 })
	})
	require.NoError(t, err)

	for _, k := range []int{0, 1, 2} {
		require.Equal(t, 2*3+100, accum[k], "key %d", k)
	}
}

// TestMergeStepCollectiveRejectsMissingKey exercises ChainSetMergeMismatch:
// a is required to be a subset of b's keys.
func TestMergeStepCollectiveRejectsMissingKey(t *testing.T) {
	mgr := newSoloManager()
	a := NewChainSet[int](mgr, Local)
	b := NewChainSet[int](mgr, Local)
	a.AddIndex(0)
	a.AddIndex(1)
	b.AddIndex(0)

	err := MergeStepCollective("merge", mgr, a, b, func(k int) *PendingSend {
		return NewPendingSend(func() {})
	})
	require.Error(t, err)
	require.IsType(t, &ChainSetMergeMismatchError{}, err)
}

// TestChainSetPhaseDoneResetsEveryChain exercises phaseDone: after
// calling it, every tracked chain reports terminated again even if a
// step's epoch was still open.
func TestChainSetPhaseDoneResetsEveryChain(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[int](mgr, Home)
	set.AddIndex(1)

	e := mgr.MakeEpochRooted(epoch.CategoryDS, "long-running")
	set.chains[1].Add(e, NewPendingSend(func() {}))
	require.False(t, set.chains[1].IsTerminated())

	set.PhaseDone()
	require.True(t, set.chains[1].IsTerminated())
}

// TestChainSetImplementsElementListener covers the collection-lifecycle
// hook surface: a ChainSet can be registered directly as
// the sink for element creation/migration/destruction notices, and a
// Local-mode set follows an element across a migration while a Home-mode
// set ignores migration entirely.
func TestChainSetImplementsElementListener(t *testing.T) {
	mgr := newSoloManager()
	local := NewChainSet[int](mgr, Local)
	var listener ElementListener[int] = local

	listener.OnElementCreated(7)
	require.ElementsMatch(t, []int{7}, local.Keys())

	// Migrating away from this node (self == node 0) drops local tracking.
	listener.OnElementMigrated(7, 0, 1)
	require.Empty(t, local.Keys())

	// Migrating back in re-creates a fresh bootstrap chain.
	listener.OnElementMigrated(7, 1, 0)
	require.ElementsMatch(t, []int{7}, local.Keys())
	require.True(t, local.chains[7].IsTerminated())

	listener.OnElementDestroyed(7)
	require.Empty(t, local.Keys())

	// A redundant destroy notice for an index already gone is a no-op, not
	// a ChainSetMisuse panic.
	require.NotPanics(t, func() { listener.OnElementDestroyed(7) })

	home := NewChainSet[int](mgr, Home)
	var homeListener ElementListener[int] = home
	homeListener.OnElementCreated(9)
	homeListener.OnElementMigrated(9, 0, 1)
	require.ElementsMatch(t, []int{9}, home.Keys(), "home-mode tracking ignores migration")
}

func TestChainSetKeysAndForEach(t *testing.T) {
	mgr := newSoloManager()
	set := NewChainSet[int](mgr, Local)
	set.AddIndex(1)
	set.AddIndex(2)
	set.AddIndex(3)

	require.ElementsMatch(t, []int{1, 2, 3}, set.Keys())

	seen := map[int]bool{}
	set.ForEach(func(k int) { seen[k] = true })
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}
