package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// parseBoolQuery returns the boolean value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseBoolQuery(r *http.Request, key string, def bool) bool {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// mediaType strips parameters from a Content-Type header.
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
