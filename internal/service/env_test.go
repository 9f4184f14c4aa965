package service

import (
	"encoding/json"
	"errors"
	"sync"
)

// scriptEnv finishes every load at once and answers evaluations from
// results keyed by expression.
type scriptEnv struct {
	mu          sync.Mutex
	loads       []string
	expressions []string
	results     map[string]string
	sink        func(name string, body json.RawMessage)
}

func newScriptEnv() *scriptEnv {
	return &scriptEnv{results: make(map[string]string)}
}

func (e *scriptEnv) Load(url string, finished func()) error {
	e.mu.Lock()
	e.loads = append(e.loads, url)
	e.mu.Unlock()
	finished()
	return nil
}

func (e *scriptEnv) Evaluate(expression string, done func(json.RawMessage, error)) {
	e.mu.Lock()
	e.expressions = append(e.expressions, expression)
	result, ok := e.results[expression]
	e.mu.Unlock()

	if !ok {
		done(nil, errors.New("ReferenceError"))
		return
	}
	done(json.RawMessage(result), nil)
}

func (e *scriptEnv) AddScriptMessageHandler(string) error { return nil }

func (e *scriptEnv) RemoveScriptMessageHandler(string) {}

func (e *scriptEnv) SetScriptMessageSink(sink func(name string, body json.RawMessage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *scriptEnv) respondTo(expression, result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[expression] = result
}

func (e *scriptEnv) evaluated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.expressions...)
}

func (e *scriptEnv) post(name, body string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	sink(name, json.RawMessage(body))
}
