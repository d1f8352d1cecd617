package server

import (
	"encoding/json"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %s", err)
	}
}

// writeAck is the write response when the upstream body holds no record.
type writeAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func ackFrom(body []byte) writeAck {
	ack := writeAck{Success: true}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		ack.Message = parsed.Message
	}
	return ack
}
