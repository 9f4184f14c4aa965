package router

import (
	"net/http"

	"github.com/arko-chat/jsbridge/components/assets"
	"github.com/arko-chat/jsbridge/internal/handlers"
	"github.com/arko-chat/jsbridge/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
)

// New routes the devtools server. The demo page and its assets are public
// so the scripting environment can load them; everything else needs the
// devtools token.
func New(
	h *handlers.Handler,
	token string,
	codec *securecookie.SecureCookie,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)

	r.Get("/demo/", h.HandleDemo)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets.DistFS()))))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(token, codec))

		r.Get("/", h.HandleConsole)
		r.Get("/ws", h.HandleWS)

		r.Get("/api/state", h.HandleState)
		r.Get("/api/journal", h.HandleJournal)
		r.Post("/api/invoke", h.HandleInvoke)
		r.Post("/api/load", h.HandleLoad)
	})

	return r
}
