package webview

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	webview "github.com/webview/webview_go"
)

// fakeWindow runs dispatched work inline and records what the environment
// asked the page to do.
type fakeWindow struct {
	mu        sync.Mutex
	bound     map[string]any
	inits     []string
	navigated []string
	evals     []string
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{bound: make(map[string]any)}
}

func (f *fakeWindow) Run() {}
func (f *fakeWindow) Terminate() {}
func (f *fakeWindow) Dispatch(fn func()) { fn() }
func (f *fakeWindow) Destroy() {}
func (f *fakeWindow) Window() unsafe.Pointer { return nil }
func (f *fakeWindow) SetTitle(string) {}
func (f *fakeWindow) SetSize(int, int, webview.Hint) {}
func (f *fakeWindow) SetHtml(string) {}
func (f *fakeWindow) Unbind(name string) error { delete(f.bound, name); return nil }
func (f *fakeWindow) Bind(name string, fn interface{}) error { f.bound[name] = fn; return nil }

func (f *fakeWindow) Navigate(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
}

func (f *fakeWindow) Init(js string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, js)
}

func (f *fakeWindow) Eval(js string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, js)
}

func (f *fakeWindow) loadEvent(t *testing.T, navigation uint64, href string) {
	t.Helper()
	fn, ok := f.bound["__bridgeNavigated"].(func(uint64, string))
	require.True(t, ok)
	fn(navigation, href)
}

func (f *fakeWindow) resultEvent(t *testing.T, id uint64, value string, errMessage string) {
	t.Helper()
	fn, ok := f.bound["__bridgeResult"].(func(uint64, json.RawMessage, string))
	require.True(t, ok)
	fn(id, json.RawMessage(value), errMessage)
}

func newTestEnvironment(t *testing.T) (*Environment, *fakeWindow) {
	t.Helper()
	w := newFakeWindow()
	env, err := New(w, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return env, w
}

func TestEnvironment_Binds(t *testing.T) {
	_, w := newTestEnvironment(t)

	for _, name := range []string{"__bridgeNavigated", "__bridgeResult", "__bridgePost", "openExternal"} {
		assert.Contains(t, w.bound, name)
	}
	require.Len(t, w.inits, 1)
	assert.Contains(t, w.inits[0], "__bridgeNavigation")
}

func TestEnvironment_LoadFinished(t *testing.T) {
	env, w := newTestEnvironment(t)

	calls := 0
	require.NoError(t, env.Load("https://a.test/", func() { calls++ }))
	assert.Equal(t, []string{"https://a.test/"}, w.navigated)
	assert.Contains(t, w.inits[len(w.inits)-1], "window.__bridgeNavigation = 1;")

	w.loadEvent(t, 1, "https://a.test/")
	w.loadEvent(t, 1, "https://a.test/")
	assert.Equal(t, 1, calls)
}

func TestEnvironment_StaleLoadIgnored(t *testing.T) {
	env, w := newTestEnvironment(t)

	var got []string
	require.NoError(t, env.Load("https://a.test/", func() { got = append(got, "a") }))
	require.NoError(t, env.Load("https://b.test/", func() { got = append(got, "b") }))

	// The first page finishes after the second load was requested.
	w.loadEvent(t, 1, "https://a.test/")
	assert.Empty(t, got)

	w.loadEvent(t, 2, "https://b.test/")
	assert.Equal(t, []string{"b"}, got)
}

func TestEnvironment_StaleLoadKeepsBridgeLoading(t *testing.T) {
	env, w := newTestEnvironment(t)

	b := bridge.New(env, bridge.WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.LoadScript("https://a.test/"))
	require.NoError(t, b.Invoke("f", nil, nil))
	require.NoError(t, b.LoadScript("https://b.test/"))

	evals := func() int {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.evals)
	}

	w.loadEvent(t, 1, "https://a.test/")
	assert.Never(t, func() bool { return b.State() == bridge.Ready }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, evals())
	assert.Equal(t, 1, b.Pending())

	w.loadEvent(t, 2, "https://b.test/")
	assert.Eventually(t, func() bool { return b.State() == bridge.Ready }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, evals())
}

func TestEnvironment_Evaluate(t *testing.T) {
	env, w := newTestEnvironment(t)

	var (
		value json.RawMessage
		err   error
	)
	env.Evaluate(`f("a b")`, func(v json.RawMessage, e error) { value, err = v, e })

	require.Len(t, w.evals, 1)
	assert.Contains(t, w.evals[0], `(0, eval)("f(\"a b\")")`)
	assert.Contains(t, w.evals[0], "__bridgeResult(1,")

	w.resultEvent(t, 1, `{"ok":true}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(value))
}

func TestEnvironment_EvaluateFailure(t *testing.T) {
	env, w := newTestEnvironment(t)

	var err error
	env.Evaluate("f(", func(_ json.RawMessage, e error) { err = e })
	w.resultEvent(t, 1, "null", "SyntaxError: Unexpected end of input")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SyntaxError")
}

func TestEnvironment_EvaluateNull(t *testing.T) {
	env, w := newTestEnvironment(t)

	called := false
	var value json.RawMessage
	env.Evaluate("g()", func(v json.RawMessage, e error) {
		called = true
		value = v
		assert.NoError(t, e)
	})
	w.resultEvent(t, 1, "null", "")

	assert.True(t, called)
	assert.Nil(t, value)
}

func TestEnvironment_Close(t *testing.T) {
	env, w := newTestEnvironment(t)

	var err error
	env.Evaluate("f()", func(_ json.RawMessage, e error) { err = e })
	require.NoError(t, env.Close())
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, env.Load("https://a.test/", func() {}), ErrClosed)

	var late error
	env.Evaluate("f()", func(_ json.RawMessage, e error) { late = e })
	assert.ErrorIs(t, late, ErrClosed)
	assert.Len(t, w.evals, 1)
}

func TestEnvironment_Post(t *testing.T) {
	env, w := newTestEnvironment(t)

	var got []string
	env.SetScriptMessageSink(func(name string, body json.RawMessage) {
		got = append(got, name+":"+string(body))
	})
	require.NoError(t, env.AddScriptMessageHandler("chat"))
	assert.ErrorIs(t, env.AddScriptMessageHandler(" "), bridge.ErrEmptyName)

	post, ok := w.bound["__bridgePost"].(func(string, json.RawMessage))
	require.True(t, ok)
	post("chat", json.RawMessage(`"hi"`))
	post("other", json.RawMessage(`1`))

	env.RemoveScriptMessageHandler("chat")
	post("chat", json.RawMessage(`"late"`))

	assert.Equal(t, []string{`chat:"hi"`}, got)
}
