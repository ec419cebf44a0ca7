// Package term implements distributed termination detection over epochs:
// a Dijkstra-Scholten-style ping/echo detector for rooted epochs and a
// Mattern-style four-counter diffusing computation for collective epochs,
// both driven by a single per-node Manager.
package term

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/internal/logging"
	"github.com/darma-tasking/vt-term/internal/metrics"
)

var log = logging.Get("term")

// collectiveRoot is the node that coordinates waves and broadcasts
// termination for collective epochs. Collective epochs carry no creator in
// their id, so the coordinator is fixed by convention.
const collectiveRoot = epoch.Node(0)

// TerminationStatus is the answer to an IsEpochTerminated-style query:
// either the epoch is still live, or it terminated and its record is still
// held, or only the compressed window remembers it.
type TerminationStatus int

const (
	NotTerminated TerminationStatus = iota
	Terminated
	WindowTerminated
)

func (s TerminationStatus) String() string {
	switch s {
	case NotTerminated:
		return "not-terminated"
	case Terminated:
		return "terminated"
	case WindowTerminated:
		return "window-terminated"
	default:
		return "unknown"
	}
}

// Manager is the per-node termination-detection engine. One Manager
// instance exists per simulated node; epoch ids are only ever meaningful
// relative to the Manager(s) cooperating over the same transport.
type Manager struct {
	self       epoch.Node
	sender     ControlSender
	collective Collective
	window     *epoch.Window

	epochs map[epoch.Id]*epochRecord
	stack  []epoch.Id

	genCollective map[epoch.Category]uint32
	genRooted     map[epoch.Category]uint32

	listeners []ReadyListener
	deferrer  Deferrer
}

// NewManager constructs a Manager for node self, wired to sender for
// point-to-point DS control traffic and collective for Wave reduces.
func NewManager(self epoch.Node, sender ControlSender, collective Collective, window *epoch.Window) *Manager {
	return &Manager{
		self:          self,
		sender:        sender,
		collective:    collective,
		window:        window,
		epochs:        make(map[epoch.Id]*epochRecord),
		genCollective: make(map[epoch.Category]uint32),
		genRooted:     make(map[epoch.Category]uint32),
	}
}

// SetDeferrer wires d as the task runner the manager uses to schedule work
// off the current call chain: callbacks registered against an already-
// terminated epoch, and DS re-probe rounds after a stale echo. Without
// one, late action registrations run synchronously at registration time and
// stalled DS detection relies on the caller driving Produce/Consume/
// FinishedEpoch directly, which is fine for synchronous unit tests that
// don't model a scheduler at all.
func (m *Manager) SetDeferrer(d Deferrer) {
	m.deferrer = d
}

func (m *Manager) runDeferred(fn func()) {
	if m.deferrer != nil {
		m.deferrer.Defer(fn)
		return
	}
	fn()
}

// AddListener registers l to be notified whenever any epoch this node
// tracks terminates.
func (m *Manager) AddListener(l ReadyListener) {
	m.listeners = append(m.listeners, l)
}

func (m *Manager) nextGenRooted(cat epoch.Category) uint32 {
	g := m.genRooted[cat] + 1
	m.genRooted[cat] = g
	return g
}

func (m *Manager) nextGenCollective(cat epoch.Category) uint32 {
	g := m.genCollective[cat] + 1
	m.genCollective[cat] = g
	return g
}

// rootedWaveSoftThreshold is the implementation-defined soft threshold: once a
// node is tracking more than this many live epochs, newly-created rooted
// epochs always use the DS detector regardless of the caller's requested
// category, bounding how many concurrent Wave reduces a busy node can
// accumulate. Not itself observable to correctness, only to overhead.
const rootedWaveSoftThreshold = 64

// MakeEpochRooted creates a new epoch rooted at this node with no
// communication required. cat selects the detector: CategoryDS
// (the common case) for deficit-counting ping/echo, or CategoryWave to
// instead use the four-counter detector rooted solely at this creator, with
// every other node's contribution defaulting to (0,0) until it first
// produces or consumes under the id. label is carried only for diagnostics
// (dump/log output), never interpreted.
func (m *Manager) MakeEpochRooted(cat epoch.Category, label string) epoch.Id {
	useDS := cat != epoch.CategoryWave
	if !useDS && m.LiveEpochCount() > rootedWaveSoftThreshold {
		useDS = true
		cat = epoch.CategoryDS
	}
	id := epoch.MakeRooted(m.self, cat, m.nextGenRooted(cat))
	rec := newEpochRecord(id, label)
	if useDS {
		rec.ds = newDSState(m.self, m.self)
	} else {
		rec.wave = newWaveState(true)
	}
	m.attach(rec)
	return id
}

// MakeEpochCollective creates a new epoch shared by every node in the
// running collective. Every participating node must call this
// the same number of times, in the same relative order, for generation
// numbers to line up across nodes.
func (m *Manager) MakeEpochCollective(cat epoch.Category, label string) epoch.Id {
	id := epoch.MakeCollective(cat, m.nextGenCollective(cat))
	rec := newEpochRecord(id, label)
	rec.wave = newWaveState(m.self == collectiveRoot)
	m.attach(rec)
	return id
}

// attach registers rec and, if an epoch is currently pushed, nests rec
// under it: the enclosing epoch cannot fire until rec has.
func (m *Manager) attach(rec *epochRecord) {
	m.epochs[rec.id] = rec
	if enclosing := m.Current(); !enclosing.IsSentinel() {
		if parent, ok := m.epochs[enclosing]; ok && parent.phase < phaseActionsFired {
			parent.children[rec.id] = struct{}{}
			parent.openChildren++
			rec.parents[enclosing] = struct{}{}
		}
	}
}

// PushEpoch makes id the implicit "current" epoch that Produce/Consume
// apply to when called without an explicit id, mirroring the epoch stack
// used to thread an epoch through code that doesn't carry one explicitly.
func (m *Manager) PushEpoch(id epoch.Id) {
	m.stack = append(m.stack, id)
}

// PopEpoch removes the top of the epoch stack and returns it.
func (m *Manager) PopEpoch() epoch.Id {
	if len(m.stack) == 0 {
		return epoch.NoEpoch
	}
	id := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return id
}

// Current returns the innermost pushed epoch, or NoEpoch if the stack is
// empty.
func (m *Manager) Current() epoch.Id {
	if len(m.stack) == 0 {
		return epoch.NoEpoch
	}
	return m.stack[len(m.stack)-1]
}

// recordForRead looks up (lazily creating where legitimate) id's record
// without rejecting an already-terminated epoch: AddAction, AddActionUnique
// and AddDependency are all well-defined against a terminated id, unlike Produce which uses record() below.
func (m *Manager) recordForRead(id epoch.Id, op string) *epochRecord {
	rec, ok := m.epochs[id]
	if ok {
		return rec
	}
	if id == epoch.AnyEpoch {
		// AnyEpoch is a standing placeholder that exists on every node
		// without an explicit MakeEpoch call: the runtime produces into
		// it at startup and consumes at shutdown so nothing mistakes
		// early initialization traffic for global quiescence.
		rec = newEpochRecord(id, "any-epoch")
		rec.wave = newWaveState(false)
		m.epochs[id] = rec
		return rec
	}
	if id.IsRooted() {
		// A rooted epoch id is self-describing: both its creator and its
		// detector category are recoverable from the bits alone. A
		// node that has never seen this id before but receives traffic
		// stamped with it is simply learning about someone else's rooted
		// epoch for the first time, which is the normal way rooted
		// epochs propagate through a distributed run; it must attach the
		// same detector kind the creator picked, not always DS.
		rec = newEpochRecord(id, "")
		if id.Category() == epoch.CategoryWave {
			rec.wave = newWaveState(m.self == id.Creator())
		} else {
			rec.ds = newDSState(m.self, id.Creator())
		}
		m.epochs[id] = rec
		return rec
	}
	log.Error("invalid epoch use", "op", op, "epoch", id.String())
	panic(&InvalidEpochUseError{Op: op, Epoch: id.String()})
}

// recordForDelivery is recordForRead extended with lazy creation for
// collective epochs: a message arrival is a legitimate first local
// reference to an epoch, even one this node has not yet
// created in lockstep with its peers.
func (m *Manager) recordForDelivery(id epoch.Id) *epochRecord {
	rec, ok := m.epochs[id]
	if ok {
		return rec
	}
	if id.IsRooted() || id == epoch.AnyEpoch {
		return m.recordForRead(id, "consume")
	}
	rec = newEpochRecord(id, "")
	rec.wave = newWaveState(m.self == collectiveRoot)
	m.epochs[id] = rec
	return rec
}

// record is recordForRead plus a rejection of epochs that have already
// fired their actions: Produce represents new work under id, which is
// never valid once id is known terminated.
func (m *Manager) record(id epoch.Id, op string) *epochRecord {
	rec := m.recordForRead(id, op)
	if rec.phase >= phaseActionsFired {
		panic(&InvalidEpochUseError{Op: op, Epoch: id.String(), Label: rec.label})
	}
	return rec
}

// pokeDS advances a DS epoch after any local counter change and re-checks
// whether termination can now be declared. If the detector is stalled
// (all probes answered but channels still unbalanced, i.e. messages in
// flight), a fresh probing round is scheduled as its own task rather than
// run inline, so probe traffic interleaves with message delivery instead
// of racing ahead of it.
func (m *Manager) pokeDS(id epoch.Id, rec *epochRecord) {
	rec.ds.localPoke(m.pingFn(id), m.echoFn(id))
	m.checkTermination(id)
	m.maybeScheduleProbe(id, rec)
}

func (m *Manager) maybeScheduleProbe(id epoch.Id, rec *epochRecord) {
	if m.deferrer == nil || !rec.ds.wantsProbe() {
		return
	}
	m.deferrer.Defer(func() {
		if rec.ds.wantsProbe() {
			rec.ds.propagate(m.pingFn(id), m.echoFn(id))
		}
		m.checkTermination(id)
	})
}

// Produce records that this node sent n messages to dst under id (or the
// current epoch if id is NoEpoch), advancing whichever detector id's
// category selects. Producing on an epoch that already terminated, locally
// finished or not, is a fatal programmer error.
func (m *Manager) Produce(id epoch.Id, dst epoch.Node, n uint64) {
	if id == epoch.NoEpoch {
		id = m.Current()
	}
	if id == epoch.NoEpoch {
		return
	}
	if m.window.Contains(id) {
		panic(&InvalidEpochUseError{Op: "produce", Epoch: id.String()})
	}
	rec := m.record(id, "produce")
	if rec.finishedLocally {
		panic(&InvalidEpochUseError{Op: "produce", Epoch: id.String(), Label: rec.label})
	}
	if rec.ds != nil {
		rec.ds.produce(dst, n)
		m.pokeDS(id, rec)
	}
	if rec.wave != nil {
		rec.wave.produce(n)
	}
}

// Consume records that this node received n messages from src under id. A
// message stamped with an epoch already terminated (live record or epoch
// window) is a duplicate or late arrival and is silently dropped.
func (m *Manager) Consume(id epoch.Id, src epoch.Node, n uint64) {
	if id == epoch.NoEpoch {
		id = m.Current()
	}
	if id == epoch.NoEpoch {
		return
	}
	if m.window.Contains(id) {
		log.Debug("dropping consume on windowed epoch", "epoch", id.String(), "src", src)
		return
	}
	rec := m.recordForDelivery(id)
	if rec.phase >= phaseActionsFired {
		log.Debug("dropping consume on terminated epoch", "epoch", id.String(), "src", src)
		return
	}
	if rec.ds != nil {
		rec.ds.consume(src, n)
		m.pokeDS(id, rec)
	}
	if rec.wave != nil {
		rec.wave.consume(n)
	}
}

// FinishedEpoch records this node's local commitment to originate no more
// work under id, and kicks off (or advances) termination detection.
// Calling it again on an epoch already finished locally is a no-op.
func (m *Manager) FinishedEpoch(id epoch.Id) {
	if m.window.Contains(id) {
		return
	}
	rec := m.recordForRead(id, "finishedEpoch")
	if rec.finishedLocally || rec.phase >= phaseActionsFired {
		return
	}
	rec.finishedLocally = true
	if rec.phase == phaseCreated {
		rec.phase = phaseLocallyReady
	}
	if rec.ds != nil {
		m.pokeDS(id, rec)
		return
	}
	if rec.wave != nil {
		if rec.wave.isRoot && !rec.wave.running {
			m.startWave(id)
		}
		// The root's epoch_terminated broadcast may have already arrived
		// (and forced rec.wave done) before this node got around to calling
		// FinishedEpoch; re-check so that ordering never leaves the epoch
		// stuck past the detector having already converged.
		m.checkTermination(id)
	}
}

// AddAction defers fn until id is detected terminated, firing it at most
// once. If id has already terminated by the time this is
// called, fn still does not run synchronously inline: it is handed to this
// node's Deferrer to run as a fresh task. A Manager with no Deferrer set
// runs it inline instead.
func (m *Manager) AddAction(id epoch.Id, fn func()) {
	if m.window.Contains(id) {
		m.runDeferred(fn)
		return
	}
	rec := m.recordForRead(id, "addAction")
	if rec.phase >= phaseActionsFired {
		m.runDeferred(fn)
		return
	}
	rec.actions = append(rec.actions, fn)
}

// AddActionUnique is AddAction with de-duplication by key: only the first
// registration for a given (id, key) pair is kept, before or after id
// terminates. For an id this node knows only through its epoch window (no
// live record), keys are not tracked and every registration runs.
func (m *Manager) AddActionUnique(id epoch.Id, key string, fn func()) {
	rec, ok := m.epochs[id]
	if !ok {
		if m.window.Contains(id) {
			m.runDeferred(fn)
			return
		}
		rec = m.recordForRead(id, "addActionUnique")
	}
	if rec.phase >= phaseActionsFired {
		if _, fired := rec.firedActionKeys[key]; !fired {
			rec.firedActionKeys[key] = struct{}{}
			m.runDeferred(fn)
		}
		return
	}
	if _, exists := rec.uniqueActions[key]; exists {
		return
	}
	rec.uniqueActions[key] = fn
}

// AddActionEpoch is AddAction with the terminated id itself passed to fn,
// for a single callback shared across several epochs that needs to know
// which one just fired.
func (m *Manager) AddActionEpoch(id epoch.Id, fn func(epoch.Id)) {
	m.AddAction(id, func() { fn(id) })
}

// AddDependency holds parent open on child: parent cannot fire its actions
// until child has also terminated, even though child was not created under
// a pushed parent (chains use this with the new
// step as the parent and the prior step as the child, so steps can only
// complete in the order they were added). A child that already terminated
// holds nothing open, so the call degrades to a no-op rather than a
// misuse: a send chain's bootstrap epoch terminates the instant it is
// created and is nonetheless a legitimate dependency target.
func (m *Manager) AddDependency(parent, child epoch.Id) {
	p := m.recordForRead(parent, "addDependency")
	if p.phase >= phaseActionsFired {
		return
	}
	c, ok := m.epochs[child]
	if !ok {
		panic(&InvalidEpochUseError{Op: "addDependency", Epoch: child.String()})
	}
	if c.phase >= phaseActionsFired {
		return
	}
	if _, already := p.children[child]; already {
		return
	}
	p.children[child] = struct{}{}
	p.openChildren++
	c.parents[parent] = struct{}{}
}

// EpochStatus reports where id sits in its lifecycle: live state is
// consulted first, then the epoch window.
func (m *Manager) EpochStatus(id epoch.Id) TerminationStatus {
	if rec, ok := m.epochs[id]; ok {
		if rec.phase >= phaseActionsFired {
			return Terminated
		}
		return NotTerminated
	}
	if m.window.Contains(id) {
		return WindowTerminated
	}
	return NotTerminated
}

// IsEpochTerminated reports whether id has terminated, either as a live
// record whose actions have fired or as a historical id covered by the
// epoch window. Once true it stays true for the lifetime of the runtime
// instance.
func (m *Manager) IsEpochTerminated(id epoch.Id) bool {
	return m.EpochStatus(id) != NotTerminated
}

// checkTermination re-evaluates id's lifecycle phase and, if it has become
// ready, fires its actions, releases it into the window, and notifies
// listeners. Epochs that terminate recursively unblock everything
// depending on them.
func (m *Manager) checkTermination(id epoch.Id) {
	rec, ok := m.epochs[id]
	if !ok || rec.phase >= phaseActionsFired {
		return
	}
	if !rec.detectorTerminated() {
		return
	}
	if rec.phase < phaseDetectorTerminated {
		rec.phase = phaseDetectorTerminated
	}
	if !rec.finishedLocally || rec.openChildren > 0 {
		return
	}
	rec.phase = phaseAllChildrenTerminated
	m.fireActions(id, rec)
}

// isDetectorRoot reports whether this node is the one responsible for
// announcing id's termination to everyone else.
func (m *Manager) isDetectorRoot(rec *epochRecord) bool {
	if rec.ds != nil {
		return rec.ds.self == rec.ds.root
	}
	return rec.wave != nil && rec.wave.isRoot
}

func (m *Manager) fireActions(id epoch.Id, rec *epochRecord) {
	rec.phase = phaseActionsFired

	// The detector root announces termination only now, once every epoch
	// this one depends on has fired here too: a remote node must never
	// observe id terminated while its ordering obligations are still
	// pending at the root.
	if !rec.broadcasted && m.isDetectorRoot(rec) {
		rec.broadcasted = true
		m.sender.Broadcast(id, BroadcastEpochTerminated)
	}

	rec.firedActionKeys = make(map[string]struct{}, len(rec.uniqueActions))
	actions := rec.actions
	rec.actions = nil
	for _, fn := range actions {
		fn()
	}
	for key, fn := range rec.uniqueActions {
		rec.firedActionKeys[key] = struct{}{}
		fn()
	}
	rec.uniqueActions = nil

	m.window.Insert(id)
	rec.phase = phaseWindowed

	for _, l := range m.listeners {
		l.OnEpochTerminated(id)
	}

	for pid := range rec.parents {
		if parent, ok := m.epochs[pid]; ok {
			m.onChildTerminated(parent, id)
		}
	}
	rec.phase = phaseReleased
}

func (m *Manager) onChildTerminated(parent *epochRecord, child epoch.Id) {
	if _, ok := parent.children[child]; !ok {
		return
	}
	if parent.openChildren > 0 {
		parent.openChildren--
	}
	if parent.openChildren == 0 {
		m.checkTermination(parent.id)
	}
}

// LocalWaveSnapshot returns this node's current local (produced, consumed)
// totals for a collective epoch, for a Collective implementation to sum
// across nodes. Returns the zero WaveSnapshot if id is unknown or has no
// Wave detector (rooted epochs created with CategoryWave do have one).
func (m *Manager) LocalWaveSnapshot(id epoch.Id) WaveSnapshot {
	rec, ok := m.epochs[id]
	if !ok || rec.wave == nil {
		return WaveSnapshot{}
	}
	return rec.wave.local()
}

// Label returns the diagnostic label an epoch was created with, or "" if
// none or unknown.
func (m *Manager) Label(id epoch.Id) string {
	if rec, ok := m.epochs[id]; ok {
		return rec.label
	}
	return ""
}

func (m *Manager) pingFn(id epoch.Id) func(epoch.Node) {
	return func(dst epoch.Node) {
		m.sender.SendPing(dst, id, m.self)
	}
}

func (m *Manager) echoFn(id epoch.Id) func(epoch.Node, uint64) {
	return func(dst epoch.Node, count uint64) {
		m.sender.SendEcho(dst, id, m.self, count)
	}
}

// recordForControl looks up id's record for an incoming DS control message,
// lazily registering it the same way a first in-epoch message would, but
// without any past-lifetime panic: a stray ping/echo for an epoch this node
// already released is simply stale. Returns nil if id is not rooted.
func (m *Manager) recordForControl(id epoch.Id) *epochRecord {
	rec, ok := m.epochs[id]
	if ok {
		return rec
	}
	if !id.IsRooted() {
		return nil
	}
	rec = newEpochRecord(id, "")
	rec.ds = newDSState(m.self, id.Creator())
	m.epochs[id] = rec
	return rec
}

// HandlePing processes an incoming DS ping control message from src.
func (m *Manager) HandlePing(id epoch.Id, src epoch.Node) {
	rec := m.recordForControl(id)
	if rec == nil || rec.ds == nil {
		return
	}
	rec.ds.handlePing(src, m.pingFn(id), m.echoFn(id))
	m.checkTermination(id)
	m.maybeScheduleProbe(id, rec)
}

// HandleEcho processes an incoming DS echo control message from src.
func (m *Manager) HandleEcho(id epoch.Id, src epoch.Node, count uint64) {
	rec := m.recordForControl(id)
	if rec == nil || rec.ds == nil {
		return
	}
	rec.ds.handleEcho(src, count, m.echoFn(id))
	m.checkTermination(id)
	m.maybeScheduleProbe(id, rec)
}

// HandleTerminatedBroadcast processes the root's epoch_terminated broadcast
// on a non-root node.
func (m *Manager) HandleTerminatedBroadcast(id epoch.Id) {
	rec, ok := m.epochs[id]
	if !ok {
		// This node never produced or consumed under id; record the
		// termination in the window anyway so a late message stamped with
		// it is recognized as stale rather than resurrecting the epoch.
		m.window.Insert(id)
		return
	}
	if id.IsRooted() && m.self != id.Creator() {
		// Rooted termination is decided by the creator's finishedEpoch and
		// deficit alone; a node that merely participated has no
		// finishedEpoch of its own to wait for.
		rec.finishedLocally = true
	}
	if rec.ds != nil {
		rec.ds.forceTerminated()
	}
	if rec.wave != nil {
		rec.wave.forceTerminated()
	}
	m.checkTermination(id)
}

func (m *Manager) startWave(id epoch.Id) {
	rec, ok := m.epochs[id]
	if !ok || rec.wave == nil {
		return
	}
	rec.wave.startWave()
	m.collective.Reduce(id, rec.wave.local(), func(sum WaveSnapshot) {
		m.onWaveResult(id, sum)
	})
}

func (m *Manager) onWaveResult(id epoch.Id, sum WaveSnapshot) {
	rec, ok := m.epochs[id]
	if !ok || rec.wave == nil {
		return
	}
	if again := rec.wave.onReduceResult(sum); again {
		m.startWave(id)
		return
	}
	m.checkTermination(id)
}

// LiveEpochCount returns the number of epoch records this node currently
// tracks that have not yet reached the released phase.
func (m *Manager) LiveEpochCount() int {
	live := 0
	for _, rec := range m.epochs {
		if rec.phase < phaseReleased {
			live++
		}
	}
	return live
}

// WindowSize returns the number of compressed intervals in this node's
// epoch window.
func (m *Manager) WindowSize() int {
	return m.window.Size()
}

// windowOverflowSoftThreshold is the compressed-interval count per lane
// past which CheckWindowOverflow starts reporting: an implementation
// diagnostic, never itself a correctness bound.
const windowOverflowSoftThreshold = 128

// CheckWindowOverflow returns a non-nil error aggregating a
// WindowOverflowError for every window lane whose compressed interval
// count looks unbounded. It never blocks
// anything; callers (the metrics/dump surface) log and continue.
func (m *Manager) CheckWindowOverflow() error {
	var result error
	for _, lane := range m.window.Lanes() {
		if n := m.window.LaneSize(lane); n > windowOverflowSoftThreshold {
			result = multierror.Append(result, &WindowOverflowError{
				Lane:      fmt.Sprintf("creator=%d,category=%s,rooted=%t", lane.Creator, lane.Category, lane.Rooted),
				Intervals: n,
			})
		}
	}
	return result
}

// ReportMetrics publishes this node's current diagnostic gauges under
// nodeLabel. Called by the dump CLI once per node per dump, never by the
// detectors themselves.
func (m *Manager) ReportMetrics(nodeLabel string) {
	metrics.LiveEpochs.WithLabelValues(nodeLabel).Set(float64(m.LiveEpochCount()))
	metrics.WindowIntervals.WithLabelValues(nodeLabel).Set(float64(m.window.Size()))

	waves := 0
	for _, rec := range m.epochs {
		if rec.wave != nil && rec.wave.running {
			waves++
		}
	}
	metrics.InFlightWaves.WithLabelValues(nodeLabel).Set(float64(waves))

	if err := m.CheckWindowOverflow(); err != nil {
		log.Warn("window overflow diagnostic", "node", nodeLabel, "err", err)
	}
}

// Self returns this manager's own node id.
func (m *Manager) Self() epoch.Node {
	return m.self
}

// SelfLabel returns this manager's own node id, formatted for diagnostics.
func (m *Manager) SelfLabel() string {
	return strconv.Itoa(int(m.self))
}

func (m *Manager) String() string {
	return fmt.Sprintf("Manager{self=%d, epochs=%d}", m.self, len(m.epochs))
}

// Reinit tears down all tracked epoch state and the epoch window, used on
// runtime teardown so a fresh run never observes stale termination state:
// the id space restarts from zero per (creator, category) and a reused bit
// pattern gets a clean record with no leftover callbacks.
func (m *Manager) Reinit() {
	m.epochs = make(map[epoch.Id]*epochRecord)
	m.stack = nil
	m.genCollective = make(map[epoch.Category]uint32)
	m.genRooted = make(map[epoch.Category]uint32)
	m.window.Reset()
}
