package handlers

import (
	"io/fs"
	"net/http"

	"github.com/arko-chat/jsbridge/components/assets"
)

func (h *Handler) HandleConsole(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "console.html")
}

func (h *Handler) HandleDemo(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "demo.html")
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, name string) {
	page, err := fs.ReadFile(assets.DistFS(), name)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(page)
}
