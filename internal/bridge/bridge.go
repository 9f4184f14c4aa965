package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/arko-chat/jsbridge/internal/eventloop"
	"github.com/google/uuid"
)

// Bridge connects a host process to one scripting environment. Host code
// registers handlers the script can post messages to and invokes script
// functions, optionally receiving their results.
//
// Calls made before the environment has finished loading are queued and
// dispatched in call order once it is ready. Every environment callback is
// delivered on the bridge's control loop, one at a time.
type Bridge struct {
	env      Environment
	logger   *slog.Logger
	reporter func(error)
	loop     *eventloop.Loop

	mu        sync.Mutex
	readiness readiness
	queue     callQueue
	handlers  *registry
	callbacks *correlator
	closed    bool
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithReporter receives every diagnostic the bridge raises: invalid URLs,
// serialization and evaluation failures, unrouted or malformed messages.
// It runs on the caller's goroutine for synchronous failures and on the
// control loop otherwise.
func WithReporter(fn func(error)) Option {
	return func(b *Bridge) {
		b.reporter = fn
	}
}

func WithCorrelation(mode CorrelationMode) Option {
	return func(b *Bridge) {
		b.callbacks = newCorrelator(mode)
	}
}

// New creates a bridge over env and installs itself as env's script
// message sink. The environment is not loaded until LoadScript is called.
func New(env Environment, opts ...Option) *Bridge {
	b := &Bridge{
		env:       env,
		logger:    slog.Default(),
		handlers:  newRegistry(),
		callbacks: newCorrelator(CorrelateByName),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	b.loop = eventloop.New(b.logger)

	env.SetScriptMessageSink(b.receive)
	return b
}

// AddHandler binds fn to script messages named name, replacing any
// previous handler for that name.
func (b *Bridge) AddHandler(name string, fn HandlerFunc) error {
	if name == "" {
		return ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.env.AddScriptMessageHandler(name); err != nil {
		return err
	}
	b.handlers.add(name, fn)
	b.logger.Debug("handler added", "name", name)
	return nil
}

// RemoveHandler unbinds name. Removing an unknown name does nothing.
func (b *Bridge) RemoveHandler(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.handlers.remove(name) {
		b.env.RemoveScriptMessageHandler(name)
		b.logger.Debug("handler removed", "name", name)
	}
}

// Handlers returns the names of the registered handlers in no particular
// order.
func (b *Bridge) Handlers() []string {
	return b.handlers.names()
}

// Invoke calls function in the scripting environment with an optional
// argument (nil for none). If callback is non-nil it receives the
// function's result, provided the result is not undefined or null.
//
// The call is dispatched immediately when the environment is ready and
// queued otherwise. A SerializationError is returned, and nothing is
// queued, when the argument has no JSON form.
func (b *Bridge) Invoke(function string, argument any, callback ResultFunc) error {
	if err := CheckFunctionName(function); err != nil {
		return err
	}

	expr, err := BuildCallExpression(function, argument)
	if err != nil {
		serr := &SerializationError{Function: function, Err: err}
		b.report(serr)
		return serr
	}

	call := PendingCall{
		ID:         uuid.NewString(),
		Function:   function,
		Expression: expr,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if callback != nil {
		b.callbacks.bind(call, callback)
	}
	if b.readiness.ready() {
		b.submitLocked(call)
		return nil
	}

	b.queue.push(call)
	b.logger.Debug("call queued",
		"function", function,
		"call", call.ID,
		"state", b.readiness.state,
		"pending", b.queue.len(),
	)
	return nil
}

// LoadScript navigates the environment to rawURL. Queued calls are kept
// and dispatched once this navigation completes; a later LoadScript
// supersedes this one. On an invalid URL an InvalidURLError is returned
// and the state is unchanged.
func (b *Bridge) LoadScript(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		uerr := &InvalidURLError{URL: rawURL, Err: err}
		b.report(uerr)
		return uerr
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	prev := b.readiness
	gen := b.readiness.begin()
	err := b.env.Load(rawURL, func() {
		b.loop.Post(func() { b.navigationFinished(gen) })
	})
	if err != nil {
		b.readiness = prev
		b.mu.Unlock()

		uerr := &InvalidURLError{URL: rawURL, Err: err}
		b.report(uerr)
		return uerr
	}
	pending := b.queue.len()
	b.mu.Unlock()

	b.logger.Info("loading", "url", rawURL, "navigation", gen, "pending", pending)
	return nil
}

// State returns the current readiness of the environment.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readiness.state
}

// Pending returns the number of calls waiting for the environment.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.len()
}

// Close stops the bridge. Queued calls and unanswered callbacks are
// abandoned and later operations fail with ErrClosed. The environment
// itself is left to its owner.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	dropped := b.queue.drain()
	b.callbacks.clear()
	b.handlers.clear()
	b.mu.Unlock()

	b.loop.Close()
	b.logger.Info("closed", "dropped", len(dropped))
	return nil
}

func (b *Bridge) report(err error) {
	b.logger.Warn("bridge diagnostic", "err", err)
	if b.reporter != nil {
		b.reporter(err)
	}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if !u.IsAbs() {
		return errors.New("url is not absolute")
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return errors.New("url has no host")
		}
	case "file":
		if u.Path == "" {
			return errors.New("file url has no path")
		}
	}
	return nil
}

// CheckFunctionName accepts dotted identifier paths such as "render" or
// "app.views.render". Anything else would not parse as a call.
func CheckFunctionName(function string) error {
	if function == "" {
		return ErrEmptyName
	}
	for _, part := range strings.Split(function, ".") {
		if !isIdentifier(part) {
			return fmt.Errorf("%w: %q", ErrInvalidFunction, function)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// isEmptyResult reports whether result carries no value.
func isEmptyResult(result json.RawMessage) bool {
	return len(result) == 0 || string(result) == "null"
}
