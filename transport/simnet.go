package transport

import (
	"github.com/eapache/channels"

	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/internal/logging"
	"github.com/darma-tasking/vt-term/scheduler"
	"github.com/darma-tasking/vt-term/term"
)

var log = logging.Get("transport")

type envelopeKind int

const (
	kindBasic envelopeKind = iota
	kindPing
	kindEcho
	kindBroadcast
)

type envelope struct {
	kind          envelopeKind
	src, dst      epoch.Node
	epochBytes    []byte
	handler       string
	payload       []byte
	count         uint64
	broadcastKind term.BroadcastKind
}

type simNode struct {
	id    epoch.Node
	mgr   *term.Manager
	sched *scheduler.Scheduler
	inbox *channels.InfiniteChannel
}

// SimNet is an in-memory, multi-node simulated transport: every node runs
// its own Manager and Scheduler, and messages between them are delivered
// through per-node unbounded mailboxes rather than a real socket.
// Point-to-point DS control traffic (ping/echo) and epoch_terminated
// broadcasts travel through the mailboxes like any other envelope; Wave
// reduces are answered directly since they only need each node's local
// counters, not message ordering.
type SimNet struct {
	order    []epoch.Node
	nodes    map[epoch.Node]*simNode
	handlers map[string]HandlerFunc
}

// NewSimNet constructs a fully-connected simulated network of n nodes,
// numbered 0..n-1, with node 0 conventionally used as the root for rooted
// epochs and collective reduces in tests.
func NewSimNet(n int) *SimNet {
	net := &SimNet{handlers: make(map[string]HandlerFunc), nodes: make(map[epoch.Node]*simNode)}
	for i := 0; i < n; i++ {
		net.order = append(net.order, epoch.Node(i))
	}
	for _, nid := range net.order {
		sn := &simNode{id: nid, sched: scheduler.New(), inbox: channels.NewInfiniteChannel()}
		sn.mgr = term.NewManager(nid, &controlAdapter{net: net, self: nid}, &collectiveAdapter{net: net, self: nid}, epoch.NewWindow())
		sn.mgr.SetDeferrer(term.DeferrerFunc(func(fn func()) { sn.sched.Enqueue(fn) }))
		net.nodes[nid] = sn
	}
	return net
}

// Nodes returns every node id in the network, in ascending order.
func (s *SimNet) Nodes() []epoch.Node {
	out := make([]epoch.Node, len(s.order))
	copy(out, s.order)
	return out
}

// Manager returns the termination manager for node n.
func (s *SimNet) Manager(n epoch.Node) *term.Manager {
	return s.nodes[n].mgr
}

// Scheduler returns the task runner for node n.
func (s *SimNet) Scheduler(n epoch.Node) *scheduler.Scheduler {
	return s.nodes[n].sched
}

// Sender returns an application-facing Sender bound to node n.
func (s *SimNet) Sender(n epoch.Node) Sender {
	return &senderAdapter{net: s, self: n}
}

// RegisterHandler installs fn under name for basic messages sent with that
// handler name.
func (s *SimNet) RegisterHandler(name string, fn HandlerFunc) {
	s.handlers[name] = fn
}

func (s *SimNet) send(e envelope) {
	dst, ok := s.nodes[e.dst]
	if !ok {
		log.Warn("dropping envelope to unknown node", "dst", e.dst)
		return
	}
	dst.inbox.In() <- e
}

// PumpAll drains every node's inbox into that node's scheduler as tasks,
// returning true if anything was delivered. Ping/echo/broadcast/basic
// envelopes are all handled this way so that a node's control and
// application traffic interleave exactly as a real asynchronous transport
// would.
func (s *SimNet) PumpAll() bool {
	pumped := false
	for _, nid := range s.order {
		sn := s.nodes[nid]
		for _, e := range drain(sn.inbox) {
			ev := e
			sn.sched.Enqueue(func() { s.process(sn, ev) })
			pumped = true
		}
	}
	return pumped
}

func drain(ch *channels.InfiniteChannel) []envelope {
	var out []envelope
	for {
		select {
		case raw, ok := <-ch.Out():
			if !ok {
				return out
			}
			out = append(out, raw.(envelope))
		default:
			return out
		}
	}
}

func (s *SimNet) process(sn *simNode, e envelope) {
	var id epoch.Id
	if err := id.UnmarshalCBOR(e.epochBytes); err != nil {
		corrupt := &term.EnvelopeCorruptionError{Reason: err.Error()}
		log.Error("dropping envelope with corrupt epoch id", "err", corrupt)
		return
	}

	switch e.kind {
	case kindBasic:
		if sn.mgr.IsEpochTerminated(id) {
			// Duplicate or late arrival: the epoch already terminated here,
			// so the user handler must never see this message.
			log.Debug("dropping stale message", "epoch", id.String(), "src", e.src, "dst", e.dst)
			return
		}
		sn.mgr.Consume(id, e.src, 1)
		if h, ok := s.handlers[e.handler]; ok {
			h(e.src, id, e.payload)
		}
	case kindPing:
		sn.mgr.HandlePing(id, e.src)
	case kindEcho:
		sn.mgr.HandleEcho(id, e.src, e.count)
	case kindBroadcast:
		switch e.broadcastKind {
		case term.BroadcastEpochTerminated:
			sn.mgr.HandleTerminatedBroadcast(id)
		}
	}
}

// reduce sums every node's local Wave snapshot for id and schedules cb on
// root's own task runner with the result.
func (s *SimNet) reduce(root epoch.Node, id epoch.Id, cb func(term.WaveSnapshot)) {
	var sum term.WaveSnapshot
	for _, nid := range s.order {
		snap := s.nodes[nid].mgr.LocalWaveSnapshot(id)
		sum.Produced += snap.Produced
		sum.Consumed += snap.Consumed
	}
	rootNode := s.nodes[root]
	rootNode.sched.Enqueue(func() { cb(sum) })
}

func marshalID(id epoch.Id) []byte {
	data, err := id.MarshalCBOR()
	if err != nil {
		panic(err)
	}
	return data
}

type senderAdapter struct {
	net  *SimNet
	self epoch.Node
}

func (a *senderAdapter) SendBasic(dst epoch.Node, id epoch.Id, handler string, payload []byte) {
	a.net.Manager(a.self).Produce(id, dst, 1)
	a.net.send(envelope{kind: kindBasic, src: a.self, dst: dst, epochBytes: marshalID(id), handler: handler, payload: payload})
}

func (a *senderAdapter) StageBasic(dst epoch.Node, id epoch.Id, handler string, payload []byte) func() {
	a.net.Manager(a.self).Produce(id, dst, 1)
	env := envelope{kind: kindBasic, src: a.self, dst: dst, epochBytes: marshalID(id), handler: handler, payload: payload}
	return func() { a.net.send(env) }
}

type controlAdapter struct {
	net  *SimNet
	self epoch.Node
}

func (a *controlAdapter) SendPing(dst epoch.Node, id epoch.Id, from epoch.Node) {
	a.net.send(envelope{kind: kindPing, src: from, dst: dst, epochBytes: marshalID(id)})
}

func (a *controlAdapter) SendEcho(dst epoch.Node, id epoch.Id, from epoch.Node, count uint64) {
	a.net.send(envelope{kind: kindEcho, src: from, dst: dst, epochBytes: marshalID(id), count: count})
}

func (a *controlAdapter) Broadcast(id epoch.Id, kind term.BroadcastKind) {
	for _, nid := range a.net.order {
		if nid == a.self {
			continue
		}
		a.net.send(envelope{kind: kindBroadcast, src: a.self, dst: nid, epochBytes: marshalID(id), broadcastKind: kind})
	}
}

type collectiveAdapter struct {
	net  *SimNet
	self epoch.Node
}

func (a *collectiveAdapter) Reduce(id epoch.Id, local term.WaveSnapshot, cb func(term.WaveSnapshot)) {
	a.net.reduce(a.self, id, cb)
}
