package handlers

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes v as the JSON body with the given status
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already sent, an encode failure has nowhere to go
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes {"error": message} with the given status
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
