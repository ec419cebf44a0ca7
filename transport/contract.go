// Package transport provides the external collaborators the termination
// core needs but never implements itself: a point-to-point sender, a
// broadcaster, and a collective reducer. SimNet is the in-memory,
// multi-node implementation used by tests and the diagnostic CLI; a real
// deployment would satisfy the same interfaces over an actual network.
package transport

import "github.com/darma-tasking/vt-term/epoch"

// HandlerFunc processes an application ("basic") message delivered under
// an epoch stamp.
type HandlerFunc func(src epoch.Node, id epoch.Id, payload []byte)

// Sender is the application-facing half of the transport: sending a basic
// message under an epoch produces on it, and receiving one consumes.
type Sender interface {
	SendBasic(dst epoch.Node, id epoch.Id, handler string, payload []byte)

	// StageBasic records the produce for a basic send immediately and
	// returns the deferred wire delivery. Chain steps use it to publish
	// sends inside an epoch that is then closed, with the actual delivery
	// released only once an earlier epoch terminates: the produce must
	// land before the epoch is finished, the send itself after.
	StageBasic(dst epoch.Node, id epoch.Id, handler string, payload []byte) func()
}
