package portal

import (
	"encoding/json"
	"net/http"
)

type saveResponse struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSaveError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, saveResponse{OK: false, Error: msg})
}
