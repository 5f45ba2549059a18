package pagesvc

import "net/http"

// maxBodyBytes caps JSON request bodies on the session API.
const maxBodyBytes = 1 << 20

// apiHeaders sets the response headers of the JSON API: no sniffing, no
// framing, no caching of session state.
func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// maxBody limits request bodies to maxBodyBytes. Handlers decode JSON
// whatever the Content-Type says, so the cap does not depend on it.
func maxBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
