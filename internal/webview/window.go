package webview

import (
	"fmt"
	"strings"
	"sync"

	webview "github.com/webview/webview_go"
)

type WindowOptions struct {
	Title  string
	Width  int
	Height int
	Debug  bool
}

// Window is the native window hosting the page. Run must be called from
// the main goroutine.
type Window struct {
	w webview.WebView

	mu        sync.Mutex
	baseTitle string
	title     string
}

func NewWindow(opts WindowOptions) *Window {
	w := webview.New(opts.Debug)
	if opts.Width > 0 && opts.Height > 0 {
		w.SetSize(opts.Width, opts.Height, webview.HintNone)
	}
	win := &Window{w: w, baseTitle: opts.Title}
	win.SetTitle("")
	return win
}

func (win *Window) WebView() webview.WebView {
	return win.w
}

func (win *Window) Title() string {
	win.mu.Lock()
	defer win.mu.Unlock()
	return win.title
}

// SetTitle shows title after the base title, or the base title alone when
// title is blank.
func (win *Window) SetTitle(title string) {
	win.mu.Lock()
	defer win.mu.Unlock()

	trimmed := strings.TrimSpace(title)
	switch {
	case trimmed == "":
		win.title = win.baseTitle
	case win.baseTitle == "":
		win.title = trimmed
	default:
		win.title = fmt.Sprintf("%s | %s", win.baseTitle, trimmed)
	}

	newTitle := win.title
	win.w.Dispatch(func() {
		win.w.SetTitle(newTitle)
	})
}

// Run blocks until the window is closed or Close is called.
func (win *Window) Run() {
	win.w.Run()
	win.w.Destroy()
}

func (win *Window) Close() {
	win.w.Dispatch(func() {
		win.w.Terminate()
	})
}
