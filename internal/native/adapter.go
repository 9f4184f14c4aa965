package native

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/puzpuzpuz/xsync/v4"
)

var _ bridge.Environment = (*Adapter)(nil)

var ErrDetached = errors.New("native: adapter detached")

// Adapter turns a NativeEnvironment and the completions native code
// reports into a bridge.Environment.
type Adapter struct {
	native NativeEnvironment
	logger *slog.Logger

	mu       sync.Mutex
	loads    int64
	loadID   int64
	finished func()
	detached bool

	nextID  atomic.Int64
	pending *xsync.Map[int64, func(json.RawMessage, error)]

	sinkMu sync.RWMutex
	sink   func(name string, body json.RawMessage)
}

func NewAdapter(native NativeEnvironment, logger *slog.Logger) *Adapter {
	return &Adapter{
		native:  native,
		logger:  logger.With("component", "native"),
		pending: xsync.NewMap[int64, func(json.RawMessage, error)](),
	}
}

func (a *Adapter) Load(url string, finished func()) error {
	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return ErrDetached
	}
	a.loads++
	id := a.loads
	prevID, prev := a.loadID, a.finished
	a.loadID, a.finished = id, finished
	a.mu.Unlock()

	if err := a.native.Load(id, url); err != nil {
		a.mu.Lock()
		if a.loadID == id {
			a.loadID, a.finished = prevID, prev
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *Adapter) Evaluate(expression string, done func(json.RawMessage, error)) {
	a.mu.Lock()
	detached := a.detached
	a.mu.Unlock()
	if detached {
		done(nil, ErrDetached)
		return
	}

	id := a.nextID.Add(1)
	a.pending.Store(id, done)
	if err := a.native.Evaluate(id, expression); err != nil {
		if _, ok := a.pending.LoadAndDelete(id); ok {
			done(nil, err)
		}
	}
}

func (a *Adapter) AddScriptMessageHandler(name string) error {
	if strings.TrimSpace(name) == "" {
		return bridge.ErrEmptyName
	}
	return a.native.AddScriptMessageHandler(name)
}

func (a *Adapter) RemoveScriptMessageHandler(name string) {
	if err := a.native.RemoveScriptMessageHandler(name); err != nil {
		a.logger.Warn("failed to remove message handler", "name", name, "err", err)
	}
}

func (a *Adapter) SetScriptMessageSink(sink func(name string, body json.RawMessage)) {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	a.sink = sink
}

// NavigationFinished consumes the finished callback of the Load that was
// given requestID. Reports for superseded loads and repeats are ignored.
func (a *Adapter) NavigationFinished(requestID int64) {
	a.mu.Lock()
	if requestID != a.loadID {
		current := a.loadID
		a.mu.Unlock()
		a.logger.Debug("stale navigation ignored", "request_id", requestID, "current", current)
		return
	}
	fn := a.finished
	a.finished = nil
	a.mu.Unlock()

	if fn == nil {
		a.logger.Debug("navigation finished with no load pending", "request_id", requestID)
		return
	}
	fn()
}

// EvaluationFinished completes the evaluation started with requestID.
// result is the JSON serialization of the value, empty when the
// expression produced nothing; a non-empty errMessage fails the
// evaluation.
func (a *Adapter) EvaluationFinished(requestID int64, result string, errMessage string) {
	done, ok := a.pending.LoadAndDelete(requestID)
	if !ok {
		a.logger.Warn("evaluation result for unknown request", "request_id", requestID)
		return
	}
	if errMessage != "" {
		done(nil, errors.New(errMessage))
		return
	}
	if result == "" {
		done(nil, nil)
		return
	}
	done(json.RawMessage(result), nil)
}

// ScriptMessage delivers a message posted by page script to name.
func (a *Adapter) ScriptMessage(name string, body string) {
	a.sinkMu.RLock()
	sink := a.sink
	a.sinkMu.RUnlock()
	if sink == nil {
		return
	}
	if body == "" {
		body = "null"
	}
	sink(name, json.RawMessage(body))
}

// Detach fails outstanding evaluations and refuses new work.
func (a *Adapter) Detach() {
	a.mu.Lock()
	a.detached = true
	a.finished = nil
	a.mu.Unlock()

	a.pending.Range(func(id int64, done func(json.RawMessage, error)) bool {
		if _, ok := a.pending.LoadAndDelete(id); ok {
			done(nil, ErrDetached)
		}
		return true
	})
}
