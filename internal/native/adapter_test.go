package native

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evaluation struct {
	id         int64
	expression string
}

type load struct {
	id  int64
	url string
}

type fakeNative struct {
	mu          sync.Mutex
	loads       []load
	evaluations []evaluation
	handlers    map[string]bool
	evalErr     error
}

func newFakeNative() *fakeNative {
	return &fakeNative{handlers: make(map[string]bool)}
}

func (f *fakeNative) Load(requestID int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url == "https://refused.test/" {
		return errors.New("refused")
	}
	f.loads = append(f.loads, load{requestID, url})
	return nil
}

func (f *fakeNative) loaded() []load {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]load(nil), f.loads...)
}

func (f *fakeNative) Evaluate(requestID int64, expression string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return f.evalErr
	}
	f.evaluations = append(f.evaluations, evaluation{requestID, expression})
	return nil
}

func (f *fakeNative) AddScriptMessageHandler(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = true
	return nil
}

func (f *fakeNative) RemoveScriptMessageHandler(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, name)
	return nil
}

func (f *fakeNative) evaluated() []evaluation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evaluation(nil), f.evaluations...)
}

func (f *fakeNative) hasHandler(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[name]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestAdapter_NavigationFinishedOnce(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())

	calls := 0
	require.NoError(t, a.Load("https://example.test/", func() { calls++ }))
	loads := native.loaded()
	require.Len(t, loads, 1)

	a.NavigationFinished(loads[0].id)
	a.NavigationFinished(loads[0].id)

	assert.Equal(t, 1, calls)
}

func TestAdapter_RefusedLoadKeepsPreviousCallback(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())

	finished := false
	require.NoError(t, a.Load("https://example.test/", func() { finished = true }))
	require.Error(t, a.Load("https://refused.test/", func() { t.Fatal("refused load finished") }))

	a.NavigationFinished(native.loaded()[0].id)
	assert.True(t, finished)
}

func TestAdapter_StaleNavigationIgnored(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())

	var got []string
	require.NoError(t, a.Load("https://a.test/", func() { got = append(got, "a") }))
	require.NoError(t, a.Load("https://b.test/", func() { got = append(got, "b") }))
	loads := native.loaded()
	require.Len(t, loads, 2)
	assert.NotEqual(t, loads[0].id, loads[1].id)

	a.NavigationFinished(loads[0].id)
	assert.Empty(t, got)

	a.NavigationFinished(loads[1].id)
	assert.Equal(t, []string{"b"}, got)
}

func TestAdapter_StaleNavigationKeepsBridgeLoading(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())
	b := bridge.New(a, bridge.WithLogger(discardLogger()))
	t.Cleanup(func() { b.Close() })

	require.NoError(t, b.LoadScript("https://a.test/"))
	require.NoError(t, b.Invoke("f", nil, nil))
	require.NoError(t, b.LoadScript("https://b.test/"))
	loads := native.loaded()
	require.Len(t, loads, 2)

	a.NavigationFinished(loads[0].id)
	assert.Never(t, func() bool { return b.State() == bridge.Ready }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, native.evaluated())
	assert.Equal(t, 1, b.Pending())

	a.NavigationFinished(loads[1].id)
	require.Eventually(t, func() bool {
		return len(native.evaluated()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, bridge.Ready, b.State())
}

func TestAdapter_EvaluationResults(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())

	type outcome struct {
		result json.RawMessage
		err    error
	}
	var got []outcome
	record := func(result json.RawMessage, err error) {
		got = append(got, outcome{result, err})
	}

	a.Evaluate("a()", record)
	a.Evaluate("b()", record)
	a.Evaluate("c()", record)

	evals := native.evaluated()
	require.Len(t, evals, 3)
	assert.Equal(t, "a()", evals[0].expression)

	a.EvaluationFinished(evals[0].id, `{"x":1}`, "")
	a.EvaluationFinished(evals[1].id, "", "")
	a.EvaluationFinished(evals[2].id, "", "ReferenceError: c is not defined")
	a.EvaluationFinished(evals[2].id, "1", "")
	a.EvaluationFinished(999, "1", "")

	require.Len(t, got, 3)
	assert.JSONEq(t, `{"x":1}`, string(got[0].result))
	assert.NoError(t, got[0].err)
	assert.Nil(t, got[1].result)
	assert.NoError(t, got[1].err)
	assert.EqualError(t, got[2].err, "ReferenceError: c is not defined")
}

func TestAdapter_EvaluateRefused(t *testing.T) {
	native := newFakeNative()
	native.evalErr = errors.New("no web view")
	a := NewAdapter(native, discardLogger())

	var err error
	a.Evaluate("f()", func(_ json.RawMessage, e error) { err = e })
	assert.EqualError(t, err, "no web view")
}

func TestAdapter_Detach(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())

	var pendingErr error
	a.Evaluate("f()", func(_ json.RawMessage, err error) { pendingErr = err })
	a.Detach()
	assert.ErrorIs(t, pendingErr, ErrDetached)

	var lateErr error
	a.Evaluate("g()", func(_ json.RawMessage, err error) { lateErr = err })
	assert.ErrorIs(t, lateErr, ErrDetached)
	assert.ErrorIs(t, a.Load("https://example.test/", func() {}), ErrDetached)
}

func TestAdapter_ScriptMessage(t *testing.T) {
	a := NewAdapter(newFakeNative(), discardLogger())

	// no sink yet
	a.ScriptMessage("early", `1`)

	var names []string
	var bodies []string
	a.SetScriptMessageSink(func(name string, body json.RawMessage) {
		names = append(names, name)
		bodies = append(bodies, string(body))
	})
	a.ScriptMessage("greet", `{"message":"hi"}`)
	a.ScriptMessage("ping", "")

	assert.Equal(t, []string{"greet", "ping"}, names)
	assert.Equal(t, []string{`{"message":"hi"}`, "null"}, bodies)
}

func TestAdapter_WithBridge(t *testing.T) {
	native := newFakeNative()
	a := NewAdapter(native, discardLogger())
	b := bridge.New(a, bridge.WithLogger(discardLogger()))
	t.Cleanup(func() { b.Close() })

	received := make(chan string, 1)
	require.NoError(t, b.AddHandler("greet", func(body json.RawMessage) {
		received <- string(body)
	}))
	assert.True(t, native.hasHandler("greet"))

	results := make(chan string, 1)
	require.NoError(t, b.Invoke("add", 4, func(result json.RawMessage) {
		results <- string(result)
	}))
	assert.Empty(t, native.evaluated())

	require.NoError(t, b.LoadScript("https://example.test/"))
	a.NavigationFinished(native.loaded()[0].id)

	require.Eventually(t, func() bool {
		return len(native.evaluated()) == 1
	}, time.Second, 5*time.Millisecond)
	eval := native.evaluated()[0]
	assert.Equal(t, `add("4")`, eval.expression)

	a.EvaluationFinished(eval.id, "8", "")
	select {
	case got := <-results:
		assert.Equal(t, "8", got)
	case <-time.After(time.Second):
		t.Fatal("no result")
	}

	a.ScriptMessage("greet", `"hi"`)
	select {
	case got := <-received:
		assert.Equal(t, `"hi"`, got)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}

func TestRegistry(t *testing.T) {
	Register(nil)
	_, err := Safe()
	assert.ErrorIs(t, err, ErrNotRegistered)

	native := newFakeNative()
	Register(native)
	t.Cleanup(func() { Register(nil) })

	got, err := Safe()
	require.NoError(t, err)
	assert.Same(t, native, got)
}
