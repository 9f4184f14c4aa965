package bridge

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
)

// CorrelationMode selects how evaluation results find their callbacks.
type CorrelationMode int

const (
	// CorrelateByName keys callbacks by function name. A second Invoke of
	// the same function before the first result arrives replaces the
	// callback, and the first result to arrive consumes it. Existing
	// scripted counterparts depend on this behaviour.
	CorrelateByName CorrelationMode = iota

	// CorrelateByCall keys callbacks by the identifier of each call, so
	// concurrent calls to one function each get their own result.
	CorrelateByCall
)

func (m CorrelationMode) String() string {
	switch m {
	case CorrelateByName:
		return "name"
	case CorrelateByCall:
		return "call"
	default:
		return "unknown"
	}
}

// ParseCorrelationMode accepts "name" or "call"; empty means name.
func ParseCorrelationMode(s string) (CorrelationMode, error) {
	switch s {
	case "", "name":
		return CorrelateByName, nil
	case "call":
		return CorrelateByCall, nil
	default:
		return 0, fmt.Errorf("unknown correlation mode %q", s)
	}
}

// binding remembers which call registered fn so a failed call only drops
// its own callback.
type binding struct {
	callID string
	fn     ResultFunc
}

type correlator struct {
	mode     CorrelationMode
	bindings *xsync.Map[string, binding]
}

func newCorrelator(mode CorrelationMode) *correlator {
	return &correlator{
		mode:     mode,
		bindings: xsync.NewMap[string, binding](),
	}
}

func (c *correlator) key(call PendingCall) string {
	if c.mode == CorrelateByCall {
		return call.ID
	}
	return call.Function
}

func (c *correlator) bind(call PendingCall, fn ResultFunc) {
	c.bindings.Store(c.key(call), binding{callID: call.ID, fn: fn})
}

// take removes and returns the binding for call.
func (c *correlator) take(call PendingCall) (ResultFunc, bool) {
	b, ok := c.bindings.LoadAndDelete(c.key(call))
	return b.fn, ok
}

// abandon drops the binding registered by a call that will never produce
// a result. A binding a later call has since replaced is kept.
func (c *correlator) abandon(call PendingCall) {
	c.bindings.Compute(c.key(call), func(b binding, loaded bool) (binding, xsync.ComputeOp) {
		if loaded && b.callID == call.ID {
			return b, xsync.DeleteOp
		}
		return b, xsync.CancelOp
	})
}

func (c *correlator) size() int {
	return c.bindings.Size()
}

func (c *correlator) clear() {
	c.bindings.Clear()
}
