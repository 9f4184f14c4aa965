package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	CookieName = "jsbridge_devtools"
	TokenParam = "token"

	cookieMaxAge = 7 * 24 * time.Hour
)

type grant struct {
	Token  string
	Issued int64
}

func NewCookieCodec(hashKey, blockKey []byte) *securecookie.SecureCookie {
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(cookieMaxAge.Seconds()))
	return codec
}

// Auth admits requests carrying token as a query parameter, a bearer
// token or a cookie issued earlier. A GET with the query token gets the
// cookie and is redirected to the same URL without it.
func Auth(token string, codec *securecookie.SecureCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if q := r.URL.Query().Get(TokenParam); q != "" {
				if !matches(q, token) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				if err := issue(w, codec, token); err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if r.Method == http.MethodGet && !isWebSocket(r) {
					u := *r.URL
					query := u.Query()
					query.Del(TokenParam)
					u.RawQuery = query.Encode()
					http.Redirect(w, r, u.RequestURI(), http.StatusSeeOther)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				if matches(bearer, token) {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if c, err := r.Cookie(CookieName); err == nil {
				var g grant
				if err := codec.Decode(CookieName, c.Value, &g); err == nil && matches(g.Token, token) {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func issue(w http.ResponseWriter, codec *securecookie.SecureCookie, token string) error {
	encoded, err := codec.Encode(CookieName, grant{Token: token, Issued: time.Now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func matches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
