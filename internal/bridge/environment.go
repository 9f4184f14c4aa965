package bridge

import "encoding/json"

// Environment is the embedded scripting environment a Bridge drives. The
// windowed (webview), headless (goja) and native (gomobile) hosts each
// provide one.
//
// Rules for implementations:
//   - callbacks may be invoked from any goroutine; the Bridge serializes
//     them onto its own control loop
//   - Evaluate must queue work in call order and return without waiting for
//     the result
//   - finished passed to Load fires at most once, and only for that load
type Environment interface {
	// Load starts navigating to url. finished is called once the document
	// has loaded and its scripts have run. A newer Load may supersede an
	// older one, in which case the older finished need not fire.
	Load(url string, finished func()) error

	// Evaluate runs expression in the current document. done receives the
	// JSON encoding of the result (nil when the script produced undefined)
	// or the error the script raised.
	Evaluate(expression string, done func(result json.RawMessage, err error))

	// AddScriptMessageHandler starts forwarding script messages posted to
	// window.webkit.messageHandlers[name] to the sink.
	AddScriptMessageHandler(name string) error

	// RemoveScriptMessageHandler stops forwarding messages for name.
	RemoveScriptMessageHandler(name string)

	// SetScriptMessageSink installs the receiver of forwarded script
	// messages.
	SetScriptMessageSink(sink func(name string, body json.RawMessage))
}

// HandlerFunc receives the body of a script message.
type HandlerFunc func(body json.RawMessage)

// ResultFunc receives the result of an invoked script function.
type ResultFunc func(result json.RawMessage)
