package service

import (
	"encoding/json"
	"errors"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/tidwall/gjson"
)

type StateView struct {
	State       string   `json:"state"`
	Pending     int      `json:"pending"`
	Handlers    []string `json:"handlers"`
	Correlation string   `json:"correlation"`
	LastSeq     uint64   `json:"last_seq"`
}

// BridgeService owns the bridge for the devtools server and journals
// everything that crosses it.
type BridgeService struct {
	*BaseService

	bridge      *bridge.Bridge
	correlation bridge.CorrelationMode
}

func NewBridgeService(
	env bridge.Environment,
	base *BaseService,
	mode bridge.CorrelationMode,
) *BridgeService {
	s := &BridgeService{
		BaseService: base,
		correlation: mode,
	}
	s.bridge = bridge.New(env,
		bridge.WithLogger(base.logger),
		bridge.WithReporter(s.reportDiagnostic),
		bridge.WithCorrelation(mode),
	)
	return s
}

func (s *BridgeService) Bridge() *bridge.Bridge {
	return s.bridge
}

// Invoke calls function with argument, which is any JSON value or empty
// for no argument. The call and its result are journaled.
func (s *BridgeService) Invoke(function string, argument json.RawMessage) error {
	return s.InvokeWithCallback(function, argument, nil)
}

// InvokeWithCallback is Invoke that also hands the result to callback.
func (s *BridgeService) InvokeWithCallback(
	function string,
	argument json.RawMessage,
	callback bridge.ResultFunc,
) error {
	if err := bridge.CheckFunctionName(function); err != nil {
		return err
	}

	var arg any
	if len(argument) > 0 {
		parsed, err := bridge.ParseArgument(argument)
		if err != nil {
			serr := &bridge.SerializationError{Function: function, Err: err}
			s.reportDiagnostic(serr)
			return serr
		}
		arg = parsed
	}

	s.record(diagnostics.Entry{
		Kind: diagnostics.KindInvoke,
		Name: function,
		Body: argument,
	})
	return s.bridge.Invoke(function, arg, func(result json.RawMessage) {
		s.record(diagnostics.Entry{
			Kind: diagnostics.KindResult,
			Name: function,
			Body: result,
		})
		if callback != nil {
			callback(result)
		}
	})
}

func (s *BridgeService) Load(rawURL string) error {
	s.record(diagnostics.Entry{
		Kind: diagnostics.KindLoad,
		Name: rawURL,
	})
	return s.bridge.LoadScript(rawURL)
}

// AddHandler registers fn under name. Every message is journaled before
// fn runs; fn may be nil.
func (s *BridgeService) AddHandler(name string, fn bridge.HandlerFunc) error {
	return s.bridge.AddHandler(name, func(body json.RawMessage) {
		s.record(diagnostics.Entry{
			Kind: diagnostics.KindMessage,
			Name: name,
			Body: body,
		})
		if fn != nil {
			fn(body)
		}
	})
}

// AddCallbackHandler registers a handler that journals each message and,
// when the body is an object naming a "callback" function, invokes it with
// the body's "argument".
func (s *BridgeService) AddCallbackHandler(name string) error {
	return s.AddHandler(name, func(body json.RawMessage) {
		callback := gjson.GetBytes(body, "callback")
		if callback.Type != gjson.String || callback.Str == "" {
			return
		}

		var argument json.RawMessage
		if arg := gjson.GetBytes(body, "argument"); arg.Exists() {
			argument = json.RawMessage(arg.Raw)
		}
		if err := s.Invoke(callback.Str, argument); err != nil {
			s.logger.Warn("callback invoke failed", "handler", name, "callback", callback.Str, "err", err)
		}
	})
}

func (s *BridgeService) RemoveHandler(name string) {
	s.bridge.RemoveHandler(name)
}

func (s *BridgeService) State() StateView {
	handlers := s.bridge.Handlers()
	if handlers == nil {
		handlers = []string{}
	}
	return StateView{
		State:       s.bridge.State().String(),
		Pending:     s.bridge.Pending(),
		Handlers:    handlers,
		Correlation: s.correlation.String(),
		LastSeq:     s.journal.Last(),
	}
}

func (s *BridgeService) Close() error {
	return s.bridge.Close()
}

func (s *BridgeService) reportDiagnostic(err error) {
	s.record(diagnostics.Entry{
		Kind:  diagnostics.KindDiagnostic,
		Name:  diagnosticSubject(err),
		Error: err.Error(),
	})
}

func diagnosticSubject(err error) string {
	var (
		urlErr       *bridge.InvalidURLError
		serErr       *bridge.SerializationError
		evalErr      *bridge.EvaluationError
		unroutedErr  *bridge.UnroutedMessageError
		malformedErr *bridge.MalformedMessageError
	)
	switch {
	case errors.As(err, &urlErr):
		return urlErr.URL
	case errors.As(err, &serErr):
		return serErr.Function
	case errors.As(err, &evalErr):
		return evalErr.Function
	case errors.As(err, &unroutedErr):
		return unroutedErr.Name
	case errors.As(err, &malformedErr):
		return malformedErr.Name
	}
	return ""
}
