package messaging

import "runtime"

// PendingSend is a deferred side-effecting action, typically an active
// message send. It carries no epoch stamp of its own; any epoch the action
// uses is captured inside the action. Release performs the action exactly
// once. An unreleased
// PendingSend still performs its action when garbage collected, giving
// at-least-once delivery even if a caller drops one on the floor; Release
// is always the preferred, deterministic path.
type PendingSend struct {
	action   func()
	released bool
}

// NewPendingSend wraps action as a PendingSend. PendingSend does no
// produce() bookkeeping itself: that is up to the caller, e.g. a staged
// send (transport.Sender.StageBasic) produces when it is staged and the
// action only delivers.
func NewPendingSend(action func()) *PendingSend {
	ps := &PendingSend{action: action}
	runtime.SetFinalizer(ps, finalizePendingSend)
	return ps
}

func finalizePendingSend(ps *PendingSend) {
	ps.Release()
}

// Release performs the wrapped action if it has not already run.
func (p *PendingSend) Release() {
	if p.released {
		return
	}
	p.released = true
	runtime.SetFinalizer(p, nil)
	if p.action != nil {
		p.action()
	}
}

// Released reports whether Release has already run.
func (p *PendingSend) Released() bool {
	return p.released
}
