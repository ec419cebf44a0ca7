package term

// WaveSnapshot is a node's local produced/consumed totals for a collective
// epoch, the value reduced (summed) across all nodes on each wave.
type WaveSnapshot struct {
	Produced uint64
	Consumed uint64
}

func (s WaveSnapshot) balanced() bool { return s.Produced == s.Consumed }

// waveState drives Mattern-style four-counter termination detection for a
// collective epoch. The root repeatedly reduces the global (produced,
// consumed) totals; two consecutive waves that agree and are balanced mean
// every message sent has been received and nothing further was produced in
// between, so the epoch has terminated.
type waveState struct {
	isRoot        bool
	produced      uint64
	consumed      uint64
	running       bool
	candidate     WaveSnapshot
	haveCandidate bool
	done          bool
}

func newWaveState(isRoot bool) *waveState {
	return &waveState{isRoot: isRoot}
}

func (w *waveState) produce(n uint64) { w.produced += n }
func (w *waveState) consume(n uint64) { w.consumed += n }

func (w *waveState) local() WaveSnapshot {
	return WaveSnapshot{Produced: w.produced, Consumed: w.consumed}
}

func (w *waveState) terminated() bool { return w.done }

// forceTerminated marks this node's view of the epoch terminated once it
// has received the root's epoch_terminated broadcast. Only the root ever
// discovers wave termination on its own (via onReduceResult); every other
// node learns it this way, mirroring dsState.forceTerminated.
func (w *waveState) forceTerminated() { w.done = true }

// onReduceResult is invoked on the root once a reduce of every node's local
// snapshot has completed. It returns true if another wave should be
// initiated (reduce again), i.e. the caller should call reduce once more
// with the root's current local() snapshot.
func (w *waveState) onReduceResult(sum WaveSnapshot) (again bool) {
	w.running = false
	if sum.balanced() && w.haveCandidate && w.candidate == sum {
		w.done = true
		return false
	}
	w.candidate = sum
	w.haveCandidate = true
	return true
}

func (w *waveState) startWave() {
	w.running = true
}
