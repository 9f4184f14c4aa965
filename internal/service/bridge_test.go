package service

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/arko-chat/jsbridge/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T, mode bridge.CorrelationMode) (*Services, *scriptEnv) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	env := newScriptEnv()
	journal := diagnostics.New(100)
	svc := New(env, journal, ws.NewHub(logger), mode, logger)
	t.Cleanup(func() {
		svc.Close()
		journal.Close()
	})
	return svc, env
}

// waitFor polls the journal until an entry of kind appears.
func waitFor(t *testing.T, s *BridgeService, kind diagnostics.Kind) diagnostics.Entry {
	t.Helper()
	var found diagnostics.Entry
	require.Eventually(t, func() bool {
		for _, e := range s.Journal().Since(0, 0) {
			if e.Kind == kind {
				found = e
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return found
}

func TestBridgeService_InvokeJournalsResult(t *testing.T) {
	svc, env := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	env.respondTo(`add({"a":1,"b":2})`, `3`)
	require.NoError(t, s.Invoke("add", json.RawMessage(`{"a":1,"b":2}`)))
	require.NoError(t, s.Load("https://example.test/"))

	result := waitFor(t, s, diagnostics.KindResult)
	assert.Equal(t, "add", result.Name)
	assert.JSONEq(t, `3`, string(result.Body))

	entries := s.Journal().Since(0, 0)
	require.GreaterOrEqual(t, len(entries), 3)
	assert.Equal(t, diagnostics.KindInvoke, entries[0].Kind)
	assert.Equal(t, diagnostics.KindLoad, entries[1].Kind)
	assert.Equal(t, "https://example.test/", entries[1].Name)
}

func TestBridgeService_InvokeWithoutArgument(t *testing.T) {
	svc, env := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	require.NoError(t, s.Load("https://example.test/"))
	require.Eventually(t, func() bool {
		return s.State().State == bridge.Ready.String()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Invoke("refresh", nil))
	assert.Equal(t, []string{"refresh()"}, env.evaluated())
}

func TestBridgeService_BadArgument(t *testing.T) {
	svc, _ := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	err := s.Invoke("f", json.RawMessage(`{"a":`))
	var serr *bridge.SerializationError
	require.ErrorAs(t, err, &serr)

	diag := waitFor(t, s, diagnostics.KindDiagnostic)
	assert.Equal(t, "f", diag.Name)
}

func TestBridgeService_EvaluationErrorJournaled(t *testing.T) {
	svc, _ := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	require.NoError(t, s.Load("https://example.test/"))
	require.NoError(t, s.Invoke("missing", nil))

	diag := waitFor(t, s, diagnostics.KindDiagnostic)
	assert.Equal(t, "missing", diag.Name)
	assert.Contains(t, diag.Error, "ReferenceError")
}

func TestBridgeService_InvalidURL(t *testing.T) {
	svc, _ := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	var uerr *bridge.InvalidURLError
	require.ErrorAs(t, s.Load("not a url"), &uerr)

	diag := waitFor(t, s, diagnostics.KindDiagnostic)
	assert.Equal(t, "not a url", diag.Name)
	assert.Equal(t, bridge.NotLoaded.String(), s.State().State)
}

func TestBridgeService_CallbackHandler(t *testing.T) {
	svc, env := newTestServices(t, bridge.CorrelateByCall)
	s := svc.Bridge

	require.NoError(t, s.AddCallbackHandler("host"))
	require.NoError(t, s.Load("https://example.test/"))
	env.respondTo(`onReply("pong")`, `true`)

	env.post("host", `{"callback":"onReply","argument":"pong"}`)

	result := waitFor(t, s, diagnostics.KindResult)
	assert.Equal(t, "onReply", result.Name)

	msg := waitFor(t, s, diagnostics.KindMessage)
	assert.Equal(t, "host", msg.Name)
	assert.JSONEq(t, `{"callback":"onReply","argument":"pong"}`, string(msg.Body))
}

func TestBridgeService_UnroutedMessage(t *testing.T) {
	svc, env := newTestServices(t, bridge.CorrelateByName)
	s := svc.Bridge

	env.post("nobody", `1`)

	diag := waitFor(t, s, diagnostics.KindDiagnostic)
	assert.Equal(t, "nobody", diag.Name)
}

func TestBridgeService_State(t *testing.T) {
	svc, _ := newTestServices(t, bridge.CorrelateByCall)
	s := svc.Bridge

	require.NoError(t, s.AddHandler("b", nil))
	require.NoError(t, s.AddHandler("a", nil))
	require.NoError(t, s.Invoke("queued", nil))

	state := s.State()
	assert.Equal(t, "not_loaded", state.State)
	assert.Equal(t, 1, state.Pending)
	assert.ElementsMatch(t, []string{"a", "b"}, state.Handlers)
	assert.Equal(t, "call", state.Correlation)
	assert.Equal(t, uint64(1), state.LastSeq)

	s.RemoveHandler("a")
	assert.Equal(t, []string{"b"}, s.State().Handlers)
}
