// Package mobile is the gomobile entry point for hosting the bridge in an
// iOS or Android web view.
package mobile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/arko-chat/jsbridge/internal/handlers"
	"github.com/arko-chat/jsbridge/internal/middleware"
	"github.com/arko-chat/jsbridge/internal/native"
	"github.com/arko-chat/jsbridge/internal/router"
	"github.com/arko-chat/jsbridge/internal/service"
	"github.com/arko-chat/jsbridge/internal/ws"
	"github.com/gorilla/securecookie"
)

// MessageHandler receives messages page script posts to a handler name.
// body is JSON.
type MessageHandler interface {
	OnMessage(body string)
}

// ResultHandler receives the JSON result of an Invoke.
type ResultHandler interface {
	OnResult(result string)
}

var (
	mu       sync.Mutex
	current  *instance
	stopFunc func()
)

type instance struct {
	adapter *native.Adapter
	svcs    *service.Services
}

func RegisterEnvironment(env native.NativeEnvironment) {
	native.Register(env)
}

// Start creates the bridge over the registered environment and a devtools
// server on a loopback port, then loads startURL when it is not empty. It
// returns the devtools console URL.
func Start(startURL string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if stopFunc != nil {
		return "", fmt.Errorf("bridge already running")
	}

	env, err := native.Safe()
	if err != nil {
		return "", fmt.Errorf("call RegisterEnvironment before Start: %w", err)
	}

	slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	adapter := native.NewAdapter(env, slogger)
	journal := diagnostics.New(diagnostics.DefaultLimit)
	hub := ws.NewHub(slogger)
	svcs := service.New(adapter, journal, hub, bridge.CorrelateByName, slogger)

	token := base64.RawURLEncoding.EncodeToString(securecookie.GenerateRandomKey(24))
	codec := middleware.NewCookieCodec(securecookie.GenerateRandomKey(64), securecookie.GenerateRandomKey(32))
	mux := router.New(handlers.New(svcs, slogger), token, codec)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		svcs.Close()
		journal.Close()
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)
	slogger.Info("mobile devtools starting", "addr", addr)

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			slogger.Error("server error", "err", err)
		}
	}()

	current = &instance{adapter: adapter, svcs: svcs}
	stopFunc = func() {
		srv.Close()
		listener.Close()
		svcs.Close()
		adapter.Detach()
		journal.Close()
		current = nil
	}

	if startURL != "" {
		if err := svcs.Bridge.Load(startURL); err != nil {
			stopFunc()
			stopFunc = nil
			return "", err
		}
	}

	return addr + "/?" + url.Values{middleware.TokenParam: {token}}.Encode(), nil
}

func Stop() {
	mu.Lock()
	defer mu.Unlock()

	if stopFunc != nil {
		stopFunc()
		stopFunc = nil
	}
}

func running() (*instance, error) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil, fmt.Errorf("bridge not running")
	}
	return current, nil
}

func LoadScript(rawURL string) error {
	inst, err := running()
	if err != nil {
		return err
	}
	return inst.svcs.Bridge.Load(rawURL)
}

func AddHandler(name string, h MessageHandler) error {
	inst, err := running()
	if err != nil {
		return err
	}
	return inst.svcs.Bridge.AddHandler(name, func(body json.RawMessage) {
		h.OnMessage(string(body))
	})
}

func RemoveHandler(name string) {
	if inst, err := running(); err == nil {
		inst.svcs.Bridge.RemoveHandler(name)
	}
}

// Invoke calls function with argumentJSON (empty for no argument). r may
// be nil.
func Invoke(function string, argumentJSON string, r ResultHandler) error {
	inst, err := running()
	if err != nil {
		return err
	}
	var callback bridge.ResultFunc
	if r != nil {
		callback = func(result json.RawMessage) {
			r.OnResult(string(result))
		}
	}
	return inst.svcs.Bridge.InvokeWithCallback(function, json.RawMessage(argumentJSON), callback)
}

// State reports the readiness of the page: not_loaded, loading or ready.
func State() string {
	inst, err := running()
	if err != nil {
		return bridge.NotLoaded.String()
	}
	return inst.svcs.Bridge.State().State
}

// NavigationFinished is called by native code with the requestID of a
// NativeEnvironment.Load once that page has finished loading.
func NavigationFinished(requestID int64) {
	if inst, err := running(); err == nil {
		inst.adapter.NavigationFinished(requestID)
	}
}

// EvaluationFinished is called by native code with the outcome of
// NativeEnvironment.Evaluate.
func EvaluationFinished(requestID int64, result string, errMessage string) {
	if inst, err := running(); err == nil {
		inst.adapter.EvaluationFinished(requestID, result, errMessage)
	}
}

// ScriptMessage is called by native code for every message page script
// posts to a registered handler.
func ScriptMessage(name string, body string) {
	if inst, err := running(); err == nil {
		inst.adapter.ScriptMessage(name, body)
	}
}
