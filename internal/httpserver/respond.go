package httpserver

import (
	"encoding/json"
	"net/http"
)

// Respond writes a JSON response body with the given status code.
func Respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorResponse is the JSON envelope returned for error responses.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError writes a JSON error envelope with the given status code.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, errorResponse{Error: code, Message: message})
}
