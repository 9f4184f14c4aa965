package webview

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/toqueteos/webbrowser"
	webview "github.com/webview/webview_go"
)

var _ bridge.Environment = (*Environment)(nil)

var ErrClosed = errors.New("webview: environment closed")

// initScript runs before every document's own scripts. The load event
// reports the navigation number the document was created under. Handler lookups
// go through a proxy so routes never need re-injecting; the Go side drops
// posts for names that are not registered. Non-local link clicks open in
// the system browser.
const initScript = `(function () {
	var handlers = new Proxy({}, {
		get: function (target, name) {
			if (typeof name !== "string") return undefined;
			return {
				postMessage: function (body) {
					__bridgePost(name, body === undefined ? null : body);
				}
			};
		}
	});
	window.webkit = window.webkit || {};
	window.webkit.messageHandlers = handlers;
	window.addEventListener("load", function () {
		__bridgeNavigated(window.__bridgeNavigation || 0, location.href);
	});
	document.addEventListener("click", function (e) {
		var a = e.target.closest && e.target.closest("a");
		if (!a || !a.href) return;
		if (a.href.startsWith(location.origin)) return;
		e.preventDefault();
		openExternal(a.href);
	});
})();`

// Environment drives a webview window. All calls into the window are
// dispatched onto its UI thread; results come back through bound
// functions.
type Environment struct {
	w      webview.WebView
	logger *slog.Logger

	mu         sync.Mutex
	navigation uint64
	finished   func()
	closed     bool

	nextID  atomic.Uint64
	pending *xsync.Map[uint64, func(json.RawMessage, error)]
	routes  *xsync.Map[string, struct{}]

	sinkMu sync.RWMutex
	sink   func(name string, body json.RawMessage)
}

// New binds the bridge callbacks into w. It must be called before w.Run.
func New(w webview.WebView, logger *slog.Logger) (*Environment, error) {
	e := &Environment{
		w:       w,
		logger:  logger.With("component", "webview"),
		pending: xsync.NewMap[uint64, func(json.RawMessage, error)](),
		routes:  xsync.NewMap[string, struct{}](),
	}

	binds := map[string]any{
		"__bridgeNavigated": e.navigated,
		"__bridgeResult":    e.result,
		"__bridgePost":      e.post,
		"openExternal":      e.openExternal,
	}
	for name, fn := range binds {
		if err := w.Bind(name, fn); err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
	}
	w.Init(initScript)
	return e, nil
}

func (e *Environment) Load(rawURL string, finished func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.navigation++
	e.finished = finished

	// Init scripts run in the order they were added, so a document created
	// after this point sees the newest number. A page still completing an
	// earlier navigation reports its older one and is ignored.
	mark := fmt.Sprintf("window.__bridgeNavigation = %d;", e.navigation)
	e.w.Dispatch(func() {
		e.w.Init(mark)
		e.w.Navigate(rawURL)
	})
	return nil
}

func (e *Environment) Evaluate(expression string, done func(json.RawMessage, error)) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		done(nil, ErrClosed)
		return
	}

	source, err := json.Marshal(expression)
	if err != nil {
		done(nil, err)
		return
	}

	id := e.nextID.Add(1)
	e.pending.Store(id, done)

	// Indirect eval keeps syntax errors inside the try so they come back as
	// a failed result rather than a silently dropped script.
	js := fmt.Sprintf(`(function () {
	try {
		var r = (0, eval)(%s);
		__bridgeResult(%d, r === undefined ? null : r, "");
	} catch (e) {
		__bridgeResult(%d, null, String(e));
	}
})();`, source, id, id)
	e.w.Dispatch(func() { e.w.Eval(js) })
}

func (e *Environment) AddScriptMessageHandler(name string) error {
	if strings.TrimSpace(name) == "" {
		return bridge.ErrEmptyName
	}
	e.routes.Store(name, struct{}{})
	return nil
}

func (e *Environment) RemoveScriptMessageHandler(name string) {
	e.routes.Delete(name)
}

func (e *Environment) SetScriptMessageSink(sink func(name string, body json.RawMessage)) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	e.sink = sink
}

// Close fails outstanding evaluations. The window is left to its owner.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.finished = nil
	e.mu.Unlock()

	e.pending.Range(func(id uint64, done func(json.RawMessage, error)) bool {
		if _, ok := e.pending.LoadAndDelete(id); ok {
			done(nil, ErrClosed)
		}
		return true
	})
	return nil
}

// navigated fires once per page load. Only a document created by the
// latest Load consumes its finished callback.
func (e *Environment) navigated(navigation uint64, href string) {
	e.mu.Lock()
	if navigation != e.navigation {
		current := e.navigation
		e.mu.Unlock()
		e.logger.Debug("stale page load ignored", "url", href, "navigation", navigation, "current", current)
		return
	}
	fn := e.finished
	e.finished = nil
	e.mu.Unlock()

	e.logger.Debug("page loaded", "url", href, "navigation", navigation)
	if fn != nil {
		fn()
	}
}

func (e *Environment) result(id uint64, value json.RawMessage, errMessage string) {
	done, ok := e.pending.LoadAndDelete(id)
	if !ok {
		return
	}
	if errMessage != "" {
		done(nil, errors.New(errMessage))
		return
	}
	if string(value) == "null" {
		value = nil
	}
	done(value, nil)
}

func (e *Environment) post(name string, body json.RawMessage) {
	if _, ok := e.routes.Load(name); !ok {
		e.logger.Debug("message for unregistered handler dropped", "name", name)
		return
	}
	e.sinkMu.RLock()
	sink := e.sink
	e.sinkMu.RUnlock()
	if sink != nil {
		sink(name, body)
	}
}

func (e *Environment) openExternal(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "mailto" {
		return fmt.Errorf("refusing to open %q", rawURL)
	}
	return webbrowser.Open(u.String())
}
