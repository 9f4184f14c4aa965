package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/eventloop"
	"github.com/dop251/goja"
	"github.com/puzpuzpuz/xsync/v4"
)

var (
	ErrNoDocument = errors.New("headless: no document loaded")
	ErrClosed     = errors.New("headless: environment closed")
)

var _ bridge.Environment = (*Environment)(nil)

type Options struct {
	// EvalTimeout interrupts scripts and evaluations that run longer.
	// Zero disables the limit.
	EvalTimeout time.Duration
}

// Environment is a browserless scripting environment backed by goja. Each
// navigation gets a fresh VM; every VM access happens on the
// environment's own loop.
type Environment struct {
	loader *Loader
	opts   Options
	logger *slog.Logger
	loop   *eventloop.Loop

	ctx    context.Context
	cancel context.CancelFunc

	navigation atomic.Uint64
	routes     *xsync.Map[string, struct{}]

	sinkMu sync.RWMutex
	sink   func(name string, body json.RawMessage)

	// owned by the loop
	vm *goja.Runtime
}

func New(loader *Loader, opts Options, logger *slog.Logger) *Environment {
	logger = logger.With("component", "headless")
	ctx, cancel := context.WithCancel(context.Background())
	return &Environment{
		loader: loader,
		opts:   opts,
		logger: logger,
		loop:   eventloop.New(logger),
		ctx:    ctx,
		cancel: cancel,
		routes: xsync.NewMap[string, struct{}](),
	}
}

func (e *Environment) Load(rawURL string, finished func()) error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if !Supports(u.Scheme) {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	gen := e.navigation.Add(1)
	go func() {
		page, err := e.loader.Fetch(e.ctx, rawURL)
		e.loop.Post(func() {
			if gen != e.navigation.Load() {
				e.logger.Debug("navigation superseded", "url", rawURL, "navigation", gen)
				return
			}
			if err != nil {
				e.logger.Error("navigation failed", "url", rawURL, "err", err)
				return
			}
			e.navigate(page)
			finished()
		})
	}()
	return nil
}

func (e *Environment) Evaluate(expression string, done func(json.RawMessage, error)) {
	posted := e.loop.Post(func() {
		if e.vm == nil {
			done(nil, ErrNoDocument)
			return
		}
		v, err := e.run(e.vm, "evaluate", expression)
		if err != nil {
			done(nil, err)
			return
		}
		done(exportJSON(e.vm, v))
	})
	if !posted {
		done(nil, ErrClosed)
	}
}

func (e *Environment) AddScriptMessageHandler(name string) error {
	if strings.TrimSpace(name) == "" {
		return bridge.ErrEmptyName
	}
	e.routes.Store(name, struct{}{})
	e.loop.Post(func() { e.setRoute(e.vm, name, true) })
	return nil
}

func (e *Environment) RemoveScriptMessageHandler(name string) {
	e.routes.Delete(name)
	e.loop.Post(func() { e.setRoute(e.vm, name, false) })
}

func (e *Environment) SetScriptMessageSink(sink func(name string, body json.RawMessage)) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	e.sink = sink
}

// Close abandons any navigation in flight and stops the loop.
func (e *Environment) Close() error {
	e.cancel()
	e.navigation.Add(1)
	e.loop.Close()
	return nil
}

// navigate replaces the VM with one for page and runs the page's scripts
// followed by its DOMContentLoaded and load listeners.
func (e *Environment) navigate(page *Page) {
	vm, err := e.newRuntime(page)
	if err != nil {
		e.logger.Error("failed to set up runtime", "url", page.URL.String(), "err", err)
		return
	}
	e.vm = vm

	for _, s := range page.Scripts {
		if _, err := e.run(vm, s.Name, s.Source); err != nil {
			e.logger.Warn("script error", "script", s.Name, "err", err)
		}
	}
	if _, err := e.run(vm, "lifecycle", `__bridgeLifecycle()`); err != nil {
		e.logger.Warn("lifecycle error", "url", page.URL.String(), "err", err)
	}
	e.logger.Info("navigation finished", "url", page.URL.String(), "scripts", len(page.Scripts))
}

// run executes source with the configured time limit.
func (e *Environment) run(vm *goja.Runtime, name, source string) (goja.Value, error) {
	if e.opts.EvalTimeout > 0 {
		timer := time.AfterFunc(e.opts.EvalTimeout, func() {
			vm.Interrupt("execution timeout exceeded")
		})
		defer func() {
			timer.Stop()
			vm.ClearInterrupt()
		}()
	}
	return vm.RunScript(name, source)
}

func (e *Environment) post(name string, body string) {
	if _, ok := e.routes.Load(name); !ok {
		e.logger.Debug("message for unregistered handler dropped", "name", name)
		return
	}
	e.sinkMu.RLock()
	sink := e.sink
	e.sinkMu.RUnlock()
	if sink != nil {
		sink(name, json.RawMessage(body))
	}
}

func (e *Environment) setRoute(vm *goja.Runtime, name string, on bool) {
	if vm == nil {
		return
	}
	fn, ok := goja.AssertFunction(vm.Get("__bridgeRoute"))
	if !ok {
		return
	}
	if _, err := fn(goja.Undefined(), vm.ToValue(name), vm.ToValue(on)); err != nil {
		e.logger.Warn("failed to update message handler", "name", name, "err", err)
	}
}

// exportJSON converts a script value to JSON. undefined and null become
// nil.
func exportJSON(vm *goja.Runtime, v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify unavailable")
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(out) {
		return nil, nil
	}
	return json.RawMessage(out.String()), nil
}
