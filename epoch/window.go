package epoch

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

// interval is a half-open generation range [Lo, Hi) known to be terminated.
type interval struct {
	lo, hi uint32
}

func (iv interval) Less(than btree.Item) bool {
	return iv.lo < than.(interval).lo
}

// Window is a compressed, ordered set of terminated epoch generations,
// kept separately per (creator, category) lane. Each lane is a
// B-tree of merged half-open intervals so that long, mostly-contiguous runs
// of terminated generations cost O(log n) to record and query rather than
// O(n) terminated ids.
type Window struct {
	mu    sync.RWMutex
	lanes map[Lane]*btree.BTree
}

// NewWindow constructs an empty window.
func NewWindow() *Window {
	return &Window{lanes: make(map[Lane]*btree.BTree)}
}

func (w *Window) laneTree(lane Lane) *btree.BTree {
	t, ok := w.lanes[lane]
	if !ok {
		t = btree.New(32)
		w.lanes[lane] = t
	}
	return t
}

// Insert records id as terminated, merging it into any adjacent or
// overlapping interval already present in its lane.
func (w *Window) Insert(id Id) {
	if id.IsSentinel() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	lane := id.Lane()
	t := w.laneTree(lane)
	gen := id.Generation()
	lo, hi := gen, gen+1

	// Merge with the interval starting at-or-before lo (if any overlaps or
	// touches), then absorb every following interval that overlaps [lo,hi).
	var toDelete []interval
	t.DescendLessOrEqual(interval{lo: lo}, func(item btree.Item) bool {
		iv := item.(interval)
		if iv.hi < lo {
			return false
		}
		if iv.lo < lo {
			lo = iv.lo
		}
		if iv.hi > hi {
			hi = iv.hi
		}
		toDelete = append(toDelete, iv)
		return true
	})
	t.AscendGreaterOrEqual(interval{lo: gen}, func(item btree.Item) bool {
		iv := item.(interval)
		if iv.lo > hi {
			return false
		}
		if iv.hi > hi {
			hi = iv.hi
		}
		toDelete = append(toDelete, iv)
		return true
	})
	for _, iv := range toDelete {
		t.Delete(iv)
	}
	t.ReplaceOrInsert(interval{lo: lo, hi: hi})
}

// Contains reports whether id falls within an already-terminated interval
// of its lane, i.e. whether it should be treated as a duplicate/late
// arrival.
func (w *Window) Contains(id Id) bool {
	if id.IsSentinel() {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	lane := id.Lane()
	t, ok := w.lanes[lane]
	if !ok {
		return false
	}
	gen := id.Generation()
	found := false
	t.DescendLessOrEqual(interval{lo: gen}, func(item btree.Item) bool {
		iv := item.(interval)
		found = gen >= iv.lo && gen < iv.hi
		return false
	})
	return found
}

// Size returns the number of compressed intervals currently stored across
// all lanes, a diagnostic measure of window compression.
func (w *Window) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := 0
	for _, t := range w.lanes {
		n += t.Len()
	}
	return n
}

// Lanes returns every lane this window currently holds intervals for.
func (w *Window) Lanes() []Lane {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Lane, 0, len(w.lanes))
	for lane := range w.lanes {
		out = append(out, lane)
	}
	return out
}

// LaneSize returns the number of compressed intervals held for lane, 0 if
// the lane has never had an id inserted into it.
func (w *Window) LaneSize(lane Lane) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	t, ok := w.lanes[lane]
	if !ok {
		return 0
	}
	return t.Len()
}

// Reset discards all recorded terminations across every lane. Used on
// runtime teardown/reinitialization: the id space restarts from
// zero per (creator, category) and the window must be empty again, so that
// a new epoch reusing old id bits cannot be silently treated as a
// duplicate of the epoch that used to occupy them.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lanes = make(map[Lane]*btree.BTree)
}

// String renders a compact per-lane summary, used by the diagnostic dump.
func (w *Window) String() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return fmt.Sprintf("Window{lanes=%d, intervals=%d}", len(w.lanes), w.sizeLocked())
}

func (w *Window) sizeLocked() int {
	n := 0
	for _, t := range w.lanes {
		n += t.Len()
	}
	return n
}
