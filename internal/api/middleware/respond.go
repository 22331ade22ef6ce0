package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeError writes the same error envelope the handlers use.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "error",
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
