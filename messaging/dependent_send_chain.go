// Package messaging implements the causal send-chain machinery layered on
// the termination core: deferred PendingSends, per-key dependent send
// chains whose steps release in FIFO order as epochs terminate, and chain
// sets composing steps over dynamically keyed collections.
package messaging

import (
	"fmt"
	"sync/atomic"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/term"
)

var chainIds uint64

// DependentSendChain threads a FIFO sequence of PendingSends through a
// manager's epochs: each added link is released only once the previous
// link's epoch has globally terminated, giving the application a simple
// way to order causally dependent sends without hand-written callback
// chains.
type DependentSendChain struct {
	mgr       *term.Manager
	id        uint64
	lastEpoch epoch.Id
	seq       uint64
}

// NewDependentSendChain constructs an empty chain against mgr. The chain
// lazily opens its first closed "bootstrap" epoch on the first Add. Each
// chain carries a process-unique id so action registrations from two
// chains gating on the same epoch (the normal state after a collective
// step) can never collide under the unique-key de-duplication.
func NewDependentSendChain(mgr *term.Manager) *DependentSendChain {
	return &DependentSendChain{mgr: mgr, id: atomic.AddUint64(&chainIds, 1)}
}

func (c *DependentSendChain) checkInit() {
	if c.lastEpoch.IsSentinel() {
		c.reset()
	}
}

// reset opens a fresh, already-closed rooted DS epoch so the chain always
// has something to call AddAction against, regardless of whether any step
// has been added yet. Always a rooted DS epoch: collective epochs would
// make every chain add a cross-node barrier, which defeats the point of a
// per-key independent chain.
func (c *DependentSendChain) reset() {
	c.lastEpoch = c.mgr.MakeEpochRooted(epoch.CategoryDS, "chain-reset")
	c.mgr.FinishedEpoch(c.lastEpoch)
}

// Add appends link to the chain under newEpoch. The new epoch is held open
// until the chain's current last epoch terminates (so steps can only ever
// complete in the order they were added), the link's release is gated on
// that same termination, and newEpoch becomes the chain's new last epoch.
// The first link added to a fresh chain releases as soon as the scheduler
// gets to it: its gate, the bootstrap epoch, is already terminated.
func (c *DependentSendChain) Add(newEpoch epoch.Id, link *PendingSend) {
	c.checkInit()

	c.mgr.AddDependency(newEpoch, c.lastEpoch)
	c.seq++
	key := fmt.Sprintf("chain-%d-link-%d", c.id, c.seq)
	c.mgr.AddActionUnique(c.lastEpoch, key, link.Release)

	c.lastEpoch = newEpoch
}

// Done resets the chain, replacing its last epoch with a fresh, already
// terminated bootstrap epoch. The previous last epoch is not finished by
// Done, and IsTerminated reports true right after it either way.
func (c *DependentSendChain) Done() {
	c.reset()
}

// IsTerminated reports whether the chain's current last epoch has
// terminated, i.e. every step added so far has run.
func (c *DependentSendChain) IsTerminated() bool {
	if c.lastEpoch.IsSentinel() {
		return true
	}
	return c.mgr.IsEpochTerminated(c.lastEpoch)
}

// mergeChainStep holds newEpoch open on both a's and b's current last
// epochs, registers link to release only once both have terminated, then
// advances both chains to newEpoch.
func mergeChainStep(a, b *DependentSendChain, newEpoch epoch.Id, link *PendingSend) {
	a.checkInit()
	b.checkInit()

	a.mgr.AddDependency(newEpoch, a.lastEpoch)
	b.mgr.AddDependency(newEpoch, b.lastEpoch)

	remaining := 2
	gate := func() {
		remaining--
		if remaining == 0 {
			link.Release()
		}
	}

	a.seq++
	b.seq++
	a.mgr.AddActionUnique(a.lastEpoch, fmt.Sprintf("chain-%d-merge-%d", a.id, a.seq), gate)
	b.mgr.AddActionUnique(b.lastEpoch, fmt.Sprintf("chain-%d-merge-%d", b.id, b.seq), gate)

	a.lastEpoch = newEpoch
	b.lastEpoch = newEpoch
}
