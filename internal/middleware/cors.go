package middleware

import "net/http"

// CORS headers sent on every response, errors included. The board is a
// public, credential-less API so any origin may call it.
const (
	AllowOrigin  = "*"
	AllowHeaders = "content-type"
	AllowMethods = "GET,POST,PATCH,OPTIONS"
)

// CORS sets the permissive cross-origin headers before the handler runs, so
// they are present whatever status the handler ends up writing.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", AllowOrigin)
		h.Set("Access-Control-Allow-Headers", AllowHeaders)
		h.Set("Access-Control-Allow-Methods", AllowMethods)
		next.ServeHTTP(w, r)
	})
}
