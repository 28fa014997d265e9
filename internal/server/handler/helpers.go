package handler

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
)

// respond writes v as JSON with the given status. Encoding failures degrade
// to a plain 500.
func respond(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// respondError wraps msg in the standard error envelope.
func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// parseDepth reads the optional ?depth=N query parameter. Zero means no
// truncation; negative or unparsable values fall back to zero.
func parseDepth(r *http.Request) int {
	v := r.URL.Query().Get("depth")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
