package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/poiesic/ragrelay/message"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type countBody struct {
	Count int `json:"count"`
}

// StatusForKind maps an error kind to an HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case "invalid_input":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "not_initialized":
		return http.StatusServiceUnavailable
	case "upstream_failure":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(HeaderSessionID); id != "" {
		return id
	}
	return uuid.NewString()
}

// readBody returns the request body as raw JSON.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("body is not valid JSON")
	}
	return data, nil
}

// restRoute sends the body as a message of type t and answers with the
// payload of the last response.
func (s *Server) restRoute(t message.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
			return
		}
		s.dispatch(w, r, message.Message{Type: t, Data: data, SessionID: sessionID(r)})
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, msg message.Message) {
	out := s.handler.Handle(r.Context(), msg)
	w.Header().Set(HeaderSessionID, msg.SessionID)
	writeResponses(w, out)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, err := message.New(message.TypeEmbeddingsDelete, sessionID(r), message.DeleteRequest{IDs: []string{id}})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal")
		return
	}

	out := s.handler.Handle(r.Context(), msg)
	w.Header().Set(HeaderSessionID, msg.SessionID)
	if len(out) == 1 && out[0].Type == message.TypeEmbeddingsResponse {
		var resp message.DeleteResponse
		if err := out[0].Payload(&resp); err == nil && resp.Deleted == 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("document %s not found", id), "not_found")
			return
		}
	}
	writeResponses(w, out)
}

// writeResponses answers with the payload of the last response, or with
// the status matching its kind when it is an error.
func writeResponses(w http.ResponseWriter, out []message.Message) {
	if len(out) == 0 {
		writeError(w, http.StatusInternalServerError, "no response", "internal")
		return
	}
	last := out[len(out)-1]
	if last.Type != message.TypeError {
		writeRaw(w, http.StatusOK, last.Data)
		return
	}

	var payload message.ErrorPayload
	if err := last.Payload(&payload); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal")
		return
	}
	writeError(w, StatusForKind(payload.Kind), payload.Error, payload.Kind)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	health := s.handler.Health(r.Context())
	if health.Status != "healthy" {
		writeError(w, http.StatusServiceUnavailable, health.Components["documents"], "not_initialized")
		return
	}
	writeJSON(w, http.StatusOK, countBody{Count: health.Documents})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.handler.Health(r.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleStream routes one envelope and returns all of its responses.
// Failures travel as error messages inside a 200 response, as on a stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	if !s.channelAllowed(channel) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown channel %q", channel), "not_found")
		return
	}

	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_input")
		return
	}
	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed message: %v", err), "invalid_input")
		return
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID(r)
	}

	out := s.handler.Handle(r.Context(), msg)
	if out == nil {
		out = []message.Message{}
	}
	s.logger.Debug("stream request", "channel", channel, "type", msg.Type, "session_id", msg.SessionID, "responses", len(out))
	w.Header().Set(HeaderSessionID, msg.SessionID)
	writeJSON(w, http.StatusOK, out)
}
