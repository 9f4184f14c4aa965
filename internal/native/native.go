package native

// NativeEnvironment is implemented by the native side (Swift/Kotlin) around
// its WKWebView or WebView. gomobile exposes this as an interface that
// native code can satisfy.
//
// Rules for gomobile compatibility:
//   - methods may only use primitive types, strings, []byte, or other
//     gomobile-bound types as parameters and return values
//   - no variadic parameters
//   - errors are returned as a second return value
//
// Completions flow back through the Adapter: NavigationFinished with the
// requestID passed to Load once that page finishes, EvaluationFinished with the same
// requestID passed to Evaluate, and ScriptMessage for every
// postMessage to a handler name added with AddScriptMessageHandler.
type NativeEnvironment interface {
	// Load starts navigating the web view to url. Completion is reported
	// through NavigationFinished with requestID.
	Load(requestID int64, url string) error

	// Evaluate runs expression in the current page. The result is reported
	// later through EvaluationFinished with requestID.
	Evaluate(requestID int64, expression string) error

	// AddScriptMessageHandler makes window.webkit.messageHandlers[name]
	// (or the platform equivalent) available to page scripts.
	AddScriptMessageHandler(name string) error

	// RemoveScriptMessageHandler withdraws a handler name.
	RemoveScriptMessageHandler(name string) error
}
