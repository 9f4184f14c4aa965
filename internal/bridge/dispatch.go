package bridge

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// submitLocked hands call to the environment. b.mu must be held, which
// keeps submissions in the order calls were made.
func (b *Bridge) submitLocked(call PendingCall) {
	b.logger.Debug("dispatch", "function", call.Function, "call", call.ID)
	b.env.Evaluate(call.Expression, func(result json.RawMessage, err error) {
		b.loop.Post(func() { b.complete(call, result, err) })
	})
}

// navigationFinished runs on the loop when a load completes. Only the most
// recent navigation flips the state, and the queue is flushed within the
// same critical section so no Invoke can slip ahead of queued calls.
func (b *Bridge) navigationFinished(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if !b.readiness.finish(gen) {
		b.logger.Debug("stale navigation ignored", "navigation", gen)
		return
	}

	calls := b.queue.drain()
	b.logger.Info("ready", "navigation", gen, "flushing", len(calls))
	for _, call := range calls {
		b.submitLocked(call)
	}
}

// complete runs on the loop when an evaluation finishes.
func (b *Bridge) complete(call PendingCall, result json.RawMessage, err error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	if err != nil {
		b.callbacks.abandon(call)
		b.report(&EvaluationError{
			Function:   call.Function,
			Expression: call.Expression,
			Err:        err,
		})
		return
	}

	result = bytes.TrimSpace(result)
	if isEmptyResult(result) {
		return
	}
	if !gjson.ValidBytes(result) {
		b.callbacks.abandon(call)
		b.report(&EvaluationError{
			Function:   call.Function,
			Expression: call.Expression,
			Err:        ErrMalformedResult,
		})
		return
	}

	fn, ok := b.callbacks.take(call)
	if !ok {
		b.logger.Debug("result discarded", "function", call.Function, "call", call.ID)
		return
	}
	fn(result)
}

// receive is the environment's script message sink.
func (b *Bridge) receive(name string, body json.RawMessage) {
	b.loop.Post(func() { b.dispatchInbound(name, body) })
}

func (b *Bridge) dispatchInbound(name string, body json.RawMessage) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	fn, ok := b.handlers.lookup(name)
	if !ok {
		b.report(&UnroutedMessageError{Name: name})
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	if !gjson.ValidBytes(body) {
		b.report(&MalformedMessageError{Name: name, Body: string(body)})
		return
	}
	fn(body)
}
