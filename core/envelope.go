package core

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Envelope is the uniform response shape of every API operation. The
// backend never returns raw unwrapped records.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a successful envelope with the given message and data.
func Success(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// Failure returns a failed envelope with the given message.
func Failure(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// WriteJSON writes the object as JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, object interface{}) {
	jsonData, err := json.Marshal(object)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonData)
}

// WriteEnvelope writes the envelope as JSON response with the given status code.
func WriteEnvelope(w http.ResponseWriter, status int, envelope Envelope) {
	WriteJSON(w, status, envelope)
}
