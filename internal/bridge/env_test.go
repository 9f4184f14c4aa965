package bridge

import (
	"encoding/json"
	"errors"
	"sync"
)

type evaluation struct {
	expression string
	done       func(json.RawMessage, error)
}

// fakeEnv records what the bridge asks of the environment and lets tests
// drive navigation, evaluation results and script messages by hand.
type fakeEnv struct {
	mu          sync.Mutex
	loads       []string
	finishers   []func()
	evaluations []evaluation
	routes      map[string]bool
	sink        func(string, json.RawMessage)
	loadErr     error
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{routes: make(map[string]bool)}
}

func (e *fakeEnv) Load(url string, finished func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return e.loadErr
	}
	e.loads = append(e.loads, url)
	e.finishers = append(e.finishers, finished)
	return nil
}

func (e *fakeEnv) Evaluate(expression string, done func(json.RawMessage, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluations = append(e.evaluations, evaluation{expression: expression, done: done})
}

func (e *fakeEnv) AddScriptMessageHandler(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "reserved" {
		return errors.New("name is reserved")
	}
	e.routes[name] = true
	return nil
}

func (e *fakeEnv) RemoveScriptMessageHandler(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.routes, name)
}

func (e *fakeEnv) SetScriptMessageSink(sink func(string, json.RawMessage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// finish completes the i-th load.
func (e *fakeEnv) finish(i int) {
	e.mu.Lock()
	fn := e.finishers[i]
	e.mu.Unlock()
	fn()
}

func (e *fakeEnv) expressions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.evaluations))
	for i, ev := range e.evaluations {
		out[i] = ev.expression
	}
	return out
}

// respond completes the i-th evaluation.
func (e *fakeEnv) respond(i int, result string, err error) {
	e.mu.Lock()
	done := e.evaluations[i].done
	e.mu.Unlock()
	if result == "" {
		done(nil, err)
		return
	}
	done(json.RawMessage(result), err)
}

func (e *fakeEnv) post(name, body string) {
	e.mu.Lock()
	sink := e.sink
	routed := e.routes[name]
	e.mu.Unlock()
	if routed {
		sink(name, json.RawMessage(body))
	}
}

// postUnrouted delivers a message even if the name was never routed, as a
// misbehaving environment might.
func (e *fakeEnv) postUnrouted(name, body string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	sink(name, json.RawMessage(body))
}

func (e *fakeEnv) routed(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routes[name]
}
