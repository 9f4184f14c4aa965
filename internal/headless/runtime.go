package headless

import (
	"strings"
	"time"

	"github.com/dop251/goja"
)

// prelude gives page scripts the small part of the browser surface that
// bridge pages rely on: window, document lifecycle events and WebKit style
// message handlers.
const prelude = `(function (g) {
	var listeners = {};
	function addEventListener(type, fn) {
		(listeners[type] = listeners[type] || []).push(fn);
	}
	function removeEventListener(type, fn) {
		var fns = listeners[type] || [];
		var i = fns.indexOf(fn);
		if (i >= 0) fns.splice(i, 1);
	}
	function fire(type) {
		var fns = (listeners[type] || []).slice();
		for (var i = 0; i < fns.length; i++) {
			try { fns[i].call(g, { type: type }); } catch (e) { console.error(String(e)); }
		}
	}

	g.window = g;
	g.self = g;
	g.addEventListener = addEventListener;
	g.removeEventListener = removeEventListener;
	g.document = {
		title: __page.title,
		readyState: "loading",
		URL: __page.url,
		addEventListener: addEventListener,
		removeEventListener: removeEventListener
	};
	g.location = { href: __page.url, toString: function () { return __page.url; } };

	var handlers = {};
	g.webkit = { messageHandlers: handlers };
	g.__bridgeRoute = function (name, on) {
		if (!on) {
			delete handlers[name];
			return;
		}
		handlers[name] = {
			postMessage: function (body) {
				__bridgePost(name, body === undefined ? "null" : JSON.stringify(body));
			}
		};
	};
	g.__bridgeLifecycle = function () {
		g.document.readyState = "interactive";
		fire("DOMContentLoaded");
		g.document.readyState = "complete";
		fire("load");
	};
})(globalThis);`

// newRuntime builds a VM for page with the prelude, console, timers and
// the currently registered message handlers installed.
func (e *Environment) newRuntime(page *Page) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	pageInfo := vm.NewObject()
	if err := pageInfo.Set("url", page.URL.String()); err != nil {
		return nil, err
	}
	if err := pageInfo.Set("title", page.Title); err != nil {
		return nil, err
	}
	if err := vm.Set("__page", pageInfo); err != nil {
		return nil, err
	}

	if err := vm.Set("__bridgePost", func(call goja.FunctionCall) goja.Value {
		e.post(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "debug", "info", "warn", "error"} {
		if err := console.Set(level, e.consoleFunc(level)); err != nil {
			return nil, err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return nil, err
	}

	if err := e.installTimers(vm); err != nil {
		return nil, err
	}

	if _, err := vm.RunScript("prelude", prelude); err != nil {
		return nil, err
	}

	e.routes.Range(func(name string, _ struct{}) bool {
		e.setRoute(vm, name, true)
		return true
	})
	return vm, nil
}

func (e *Environment) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		switch level {
		case "warn":
			e.logger.Warn("console", "msg", msg)
		case "error":
			e.logger.Error("console", "msg", msg)
		default:
			e.logger.Debug("console", "level", level, "msg", msg)
		}
		return goja.Undefined()
	}
}

// installTimers provides setTimeout and clearTimeout. Callbacks run on the
// environment loop and are dropped once the VM has been replaced.
func (e *Environment) installTimers(vm *goja.Runtime) error {
	var nextID int64
	timers := make(map[int64]*time.Timer)

	if err := vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("setTimeout callback is not a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		args := append([]goja.Value(nil), call.Arguments[min(2, len(call.Arguments)):]...)

		nextID++
		id := nextID
		timers[id] = time.AfterFunc(delay, func() {
			e.loop.Post(func() {
				if _, live := timers[id]; !live || e.vm != vm {
					return
				}
				delete(timers, id)
				if _, err := fn(goja.Undefined(), args...); err != nil {
					e.logger.Warn("timer callback error", "err", err)
				}
			})
		})
		return vm.ToValue(id)
	}); err != nil {
		return err
	}

	return vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).ToInteger()
		if t, ok := timers[id]; ok {
			t.Stop()
			delete(timers, id)
		}
		return goja.Undefined()
	})
}
