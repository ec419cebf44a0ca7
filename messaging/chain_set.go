package messaging

import (
	"fmt"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/term"
)

// ChainSetLayout selects where a ChainSet tracks dependencies for a
// collection's indices: where the element currently lives, or pinned to
// its home node.
type ChainSetLayout int

const (
	Local ChainSetLayout = iota
	Home
)

// ElementListener is notified of a collection element's lifecycle events
// so a ChainSet can keep its tracked index set in sync with migration.
// Wiring one up is optional; a ChainSet can equally be driven purely by
// AddIndex/RemoveIndex.
type ElementListener[K comparable] interface {
	OnElementCreated(idx K)
	OnElementMigrated(idx K, from, to epoch.Node)
	OnElementDestroyed(idx K)
}

// ChainSet manages one DependentSendChain per key of a collection,
// letting the application enqueue steps across every live key at once
// while each key's steps still complete independently. It also implements
// ElementListener[K] itself, so a collection's lifecycle driver can
// register a ChainSet directly as its migration/creation/destruction
// sink instead of the application wiring AddIndex/RemoveIndex by hand.
type ChainSet[K comparable] struct {
	mgr    *term.Manager
	self   epoch.Node
	layout ChainSetLayout
	chains map[K]*DependentSendChain
}

// NewChainSet constructs an empty chain set against mgr.
func NewChainSet[K comparable](mgr *term.Manager, layout ChainSetLayout) *ChainSet[K] {
	return &ChainSet[K]{mgr: mgr, self: mgr.Self(), layout: layout, chains: make(map[K]*DependentSendChain)}
}

var _ ElementListener[int] = (*ChainSet[int])(nil)

// OnElementCreated implements ElementListener: start tracking a
// newly-created element, in either layout mode. A redundant create for an
// index already tracked here is a no-op rather than the ChainSetMisuse
// AddIndex alone would raise, since a collection's creation notice may
// legitimately race with an application-driven AddIndex.
func (c *ChainSet[K]) OnElementCreated(idx K) {
	if _, exists := c.chains[idx]; exists {
		return
	}
	c.AddIndex(idx)
}

// OnElementDestroyed implements ElementListener: stop tracking idx once the
// collection reports it gone. A chain with pending work is still a
// programmer error to drop; an index already untracked
// (e.g. dropped earlier by a Local-mode migration away from this node) is a
// silent no-op.
func (c *ChainSet[K]) OnElementDestroyed(idx K) {
	if _, ok := c.chains[idx]; !ok {
		return
	}
	if err := c.RemoveIndex(idx); err != nil {
		panic(err)
	}
}

// OnElementMigrated implements ElementListener. Home-mode chain sets track
// dependencies on the element's home node regardless of where it currently
// executes, so migration never changes what is tracked there. Local-mode
// chain sets follow the element: tracking is dropped here when idx moves
// away from this node and (re)started when it arrives, picking up with a
// fresh bootstrap chain rather than any state the element carried from its
// prior node.
func (c *ChainSet[K]) OnElementMigrated(idx K, from, to epoch.Node) {
	if c.layout == Home {
		return
	}
	switch c.self {
	case from:
		delete(c.chains, idx)
	case to:
		if _, exists := c.chains[idx]; !exists {
			c.chains[idx] = NewDependentSendChain(c.mgr)
		}
	}
}

// Layout reports whether this set tracks dependencies at the element's
// current location or its home node.
func (c *ChainSet[K]) Layout() ChainSetLayout {
	return c.layout
}

// AddIndex creates a fresh, empty chain for idx.
func (c *ChainSet[K]) AddIndex(idx K) {
	if _, exists := c.chains[idx]; exists {
		panic(&ChainSetMisuseError{Op: "addIndex: already present", Key: fmt.Sprint(idx)})
	}
	c.chains[idx] = NewDependentSendChain(c.mgr)
}

// RemoveIndex removes idx's chain. The chain must already be terminated;
// removing one with pending work is a programmer error.
func (c *ChainSet[K]) RemoveIndex(idx K) error {
	chain, ok := c.chains[idx]
	if !ok {
		return &ChainSetMisuseError{Op: "removeIndex: not present", Key: fmt.Sprint(idx)}
	}
	if !chain.IsTerminated() {
		return &ChainSetMisuseError{Op: "removeIndex: chain has pending work", Key: fmt.Sprint(idx)}
	}
	delete(c.chains, idx)
	return nil
}

// NextStep enqueues stepAction(idx) on every tracked key's chain, each
// under its own fresh rooted DS epoch.
func (c *ChainSet[K]) NextStep(label string, stepAction func(K) *PendingSend) {
	for idx, chain := range c.chains {
		newEpoch := c.mgr.MakeEpochRooted(epoch.CategoryDS, label)
		c.mgr.PushEpoch(newEpoch)
		link := stepAction(idx)
		c.mgr.PopEpoch()

		chain.Add(newEpoch, link)
		c.mgr.FinishedEpoch(newEpoch)
	}
}

// NextStepCollective enqueues stepAction(idx) for every tracked key under
// one shared collective epoch, for steps with cross-key, cross-node
// recursive communication that only a global barrier can bound.
func (c *ChainSet[K]) NextStepCollective(label string, stepAction func(K) *PendingSend) {
	newEpoch := c.mgr.MakeEpochCollective(epoch.CategoryWave, label)
	c.mgr.PushEpoch(newEpoch)
	for idx, chain := range c.chains {
		link := stepAction(idx)
		chain.Add(newEpoch, link)
	}
	c.mgr.PopEpoch()
	c.mgr.FinishedEpoch(newEpoch)
}

// MergeStepCollective runs stepAction for every key of a, requiring that
// key to also be present in b, under one shared collective epoch; the
// resulting PendingSend is released only once both a's and b's prior last
// epochs for that key have terminated.
func MergeStepCollective[K comparable](label string, mgr *term.Manager, a, b *ChainSet[K], stepAction func(K) *PendingSend) error {
	for idx := range a.chains {
		if _, ok := b.chains[idx]; !ok {
			return &ChainSetMergeMismatchError{Key: fmt.Sprint(idx)}
		}
	}

	newEpoch := mgr.MakeEpochCollective(epoch.CategoryWave, label)
	mgr.PushEpoch(newEpoch)

	for idx, chainA := range a.chains {
		link := stepAction(idx)
		mergeChainStep(chainA, b.chains[idx], newEpoch, link)
	}

	mgr.PopEpoch()
	mgr.FinishedEpoch(newEpoch)
	return nil
}

// PhaseDone resets every tracked chain, closing out the current phase.
func (c *ChainSet[K]) PhaseDone() {
	for _, chain := range c.chains {
		chain.Done()
	}
}

// Keys returns the set of indices currently tracked.
func (c *ChainSet[K]) Keys() []K {
	keys := make([]K, 0, len(c.chains))
	for idx := range c.chains {
		keys = append(keys, idx)
	}
	return keys
}

// ForEach runs fn immediately on every tracked index.
func (c *ChainSet[K]) ForEach(fn func(K)) {
	for idx := range c.chains {
		fn(idx)
	}
}
