// Package runtime owns the per-node wiring (transport, manager, scheduler)
// that application code and tests drive through a single handle, and the
// teardown/reinitialization lifecycle.
package runtime

import (
	"github.com/darma-tasking/vt-term/epoch"
	"github.com/darma-tasking/vt-term/internal/logging"
	"github.com/darma-tasking/vt-term/term"
	"github.com/darma-tasking/vt-term/transport"
)

var log = logging.Get("runtime")

// Context bundles a simulated network of nodes together with the drive
// loop that pumps message delivery and runs each node's scheduler to
// quiescence.
type Context struct {
	net *transport.SimNet
}

// NewContext builds a Context over a freshly constructed SimNet of
// numNodes nodes, and produces the AnyEpoch startup token on each one.
func NewContext(numNodes int) *Context {
	c := &Context{net: transport.NewSimNet(numNodes)}
	for _, n := range c.net.Nodes() {
		node := n
		mgr := c.net.Manager(n)
		mgr.AddListener(term.ReadyListenerFunc(func(id epoch.Id) {
			log.Debug("epoch terminated", "node", node, "epoch", id.String())
		}))
		mgr.Produce(epoch.AnyEpoch, n, 1)
	}
	return c
}

// Net returns the underlying simulated transport, for tests that need to
// register handlers or inspect per-node schedulers directly.
func (c *Context) Net() *transport.SimNet {
	return c.net
}

// Manager returns the termination manager for node n.
func (c *Context) Manager(n epoch.Node) *term.Manager {
	return c.net.Manager(n)
}

// Sender returns the application-facing sender for node n.
func (c *Context) Sender(n epoch.Node) transport.Sender {
	return c.net.Sender(n)
}

// RunUntilQuiet repeatedly pumps message delivery and steps every node's
// scheduler until nothing is in flight and every queue is empty. Nodes are
// stepped one task at a time, round-robin: a node whose wave detector is
// busily re-reducing must not starve its peers of the scheduler turns they
// need to consume the very messages the wave is waiting on.
func (c *Context) RunUntilQuiet() {
	for {
		progressed := c.net.PumpAll()
		for _, n := range c.net.Nodes() {
			if c.net.Scheduler(n).RunOne() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Shutdown consumes the AnyEpoch startup token on every node, the
// counterpart to the produce NewContext issues.
func (c *Context) Shutdown() {
	for _, n := range c.net.Nodes() {
		c.net.Manager(n).Consume(epoch.AnyEpoch, n, 1)
	}
}

// Reinit tears down every node's epoch state and window, then reissues the
// AnyEpoch startup token, so a subsequent run starts from a clean slate
// with the same id-space bit patterns available for reuse.
func (c *Context) Reinit() {
	log.Info("reinitializing runtime", "nodes", len(c.net.Nodes()))
	for _, n := range c.net.Nodes() {
		c.net.Manager(n).Reinit()
	}
	for _, n := range c.net.Nodes() {
		c.net.Manager(n).Produce(epoch.AnyEpoch, n, 1)
	}
}
