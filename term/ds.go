package term

import "github.com/darma-tasking/vt-term/epoch"

// dsState implements rooted-epoch termination with the channel-counting
// ping/echo scheme: every node records, per peer it has exchanged messages
// with, how many it sent and how many of those have been acknowledged. A
// node engages into the detection tree on the first ping it receives while
// unbalanced, records the sender as its activator, pings every peer it has
// itself talked to, and echoes back to its activator once every such peer
// has echoed and its own local balance holds.
type dsNeighbor struct {
	out uint64 // application messages sent to this peer
	in  uint64 // application messages received from this peer
	ack uint64 // value carried by the most recent echo from this peer
}

type dsState struct {
	self      epoch.Node
	root      epoch.Node
	engaged   bool
	activator epoch.Node
	degree    int // outstanding pings this node is waiting an echo for
	neighbors map[epoch.Node]*dsNeighbor
	done      bool
}

func newDSState(self, root epoch.Node) *dsState {
	return &dsState{
		self:      self,
		root:      root,
		engaged:   self == root,
		neighbors: make(map[epoch.Node]*dsNeighbor),
	}
}

func (d *dsState) neighbor(n epoch.Node) *dsNeighbor {
	nb, ok := d.neighbors[n]
	if !ok {
		nb = &dsNeighbor{}
		d.neighbors[n] = nb
	}
	return nb
}

func (d *dsState) produce(dst epoch.Node, n uint64) {
	d.neighbor(dst).out += n
}

func (d *dsState) consume(src epoch.Node, n uint64) {
	d.neighbor(src).in += n
}

// locallyQuiet reports whether every remote peer this node has sent to has
// acknowledged everything sent so far, and every self-send has been
// delivered back. The self channel compares out against in directly: a node
// never pings or echoes itself, but a self-send still sits in the transport
// until delivered and must block quiescence like any other in-flight
// message.
func (d *dsState) locallyQuiet() bool {
	for peer, nb := range d.neighbors {
		if peer == d.self {
			if nb.out != nb.in {
				return false
			}
			continue
		}
		if nb.out != nb.ack {
			return false
		}
	}
	return true
}

func (d *dsState) hasRemoteNeighbors() bool {
	for peer := range d.neighbors {
		if peer != d.self {
			return true
		}
	}
	return false
}

func (d *dsState) terminated() bool {
	return d.done
}

// handlePing processes an incoming ping from src. sendPing/sendEcho are
// callbacks wired by the manager to the transport layer. A node that is
// already engaged (the root always is) or already balanced answers
// immediately with its current received count; only an unengaged,
// unbalanced node joins the tree and probes its own peers first.
func (d *dsState) handlePing(src epoch.Node, sendPing func(epoch.Node), sendEcho func(epoch.Node, uint64)) {
	if d.done || d.engaged || d.locallyQuiet() {
		sendEcho(src, d.neighbor(src).in)
		return
	}
	d.engaged = true
	d.activator = src
	d.propagate(sendPing, sendEcho)
}

// propagate pings every remote peer this node has exchanged messages with,
// incrementing degree for each ping sent, then checks immediately whether
// there is nothing to wait for.
func (d *dsState) propagate(sendPing func(epoch.Node), sendEcho func(epoch.Node, uint64)) {
	for peer := range d.neighbors {
		if peer == d.self {
			continue
		}
		d.degree++
		sendPing(peer)
	}
	d.checkQuiet(sendEcho)
}

// handleEcho processes an incoming echo from src carrying count, the
// sender's view of messages received from us. It never re-probes on its
// own: if the echo leaves this node unbalanced (messages still in flight),
// the manager schedules a fresh probing round as a separate task via
// wantsProbe, so a synchronous transport can never ping-pong forever
// inside a single call chain.
func (d *dsState) handleEcho(src epoch.Node, count uint64, sendEcho func(epoch.Node, uint64)) {
	d.neighbor(src).ack = count
	if d.degree > 0 {
		d.degree--
	}
	d.checkQuiet(sendEcho)
}

// checkQuiet acts only when this node has nothing outstanding and its
// channels are balanced: the root marks the detector converged, a non-root
// engaged node echoes back to its activator and disengages. A later
// incoming message re-engages it through the usual first-ping rule.
func (d *dsState) checkQuiet(sendEcho func(epoch.Node, uint64)) {
	if d.done || d.degree != 0 || !d.engaged || !d.locallyQuiet() {
		return
	}
	if d.self == d.root {
		d.done = true
		return
	}
	sendEcho(d.activator, d.neighbor(d.activator).in)
	d.engaged = false
}

// localPoke advances the detector after a local counter change (produce,
// consume, finishedEpoch). The root starts a probing round whenever it is
// unbalanced with nothing outstanding; everyone falls through to the
// balanced-quiet check.
func (d *dsState) localPoke(sendPing func(epoch.Node), sendEcho func(epoch.Node, uint64)) {
	if d.done || d.degree != 0 {
		return
	}
	if d.self == d.root && !d.locallyQuiet() && d.hasRemoteNeighbors() {
		d.propagate(sendPing, sendEcho)
		return
	}
	d.checkQuiet(sendEcho)
}

// wantsProbe reports whether this node is stalled: nothing outstanding,
// channels unbalanced, and in a position to probe (engaged, or the root,
// which is never pinged into engagement by anyone else). The manager
// resolves a stall by scheduling propagate as a fresh task, the moral
// equivalent of the original runtime re-probing when its scheduler goes
// idle.
func (d *dsState) wantsProbe() bool {
	return !d.done && d.degree == 0 && !d.locallyQuiet() &&
		(d.engaged || d.self == d.root) && d.hasRemoteNeighbors()
}

// forceTerminated marks this node's view of the epoch terminated once it
// has received the root's epoch_terminated broadcast. Only the root can
// discover termination on its own; every other node learns it this way.
func (d *dsState) forceTerminated() {
	d.done = true
}
