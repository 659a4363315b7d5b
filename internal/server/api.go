// Package server exposes the REST API that shares the message lifecycle
// path with the WebSocket events.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/realtime"
)

type actorHandler func(w http.ResponseWriter, r *http.Request, actorID string)

// registerAPI mounts the REST entry points. Every write goes through the
// same Manager as the WebSocket events, so REST callers trigger the same
// broadcasts.
func (g *Gateway) registerAPI(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/messages/send", g.withActor(g.sendMessage)).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", g.withActor(g.editMessage)).Methods(http.MethodPatch)
	api.HandleFunc("/messages/{id}", g.withActor(g.deleteMessage)).Methods(http.MethodDelete)
	api.HandleFunc("/read/conversation/{id}", g.withActor(g.markRead)).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", g.withActor(g.listMessages)).Methods(http.MethodGet)
	api.HandleFunc("/presence/{actorId}", g.withActor(g.presenceState)).Methods(http.MethodGet)
}

// withActor authenticates the request with the same verifier as the
// WebSocket upgrade.
func (g *Gateway) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := g.Authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, actorID)
	}
}

func (g *Gateway) sendMessage(w http.ResponseWriter, r *http.Request, actorID string) {
	var body realtime.NewMessage
	if !g.decodeBody(w, r, &body) {
		return
	}
	msg, err := g.messages.Create(r.Context(), actorID, body.ConversationID, body.Text)
	if err != nil {
		g.logAPIError(r, actorID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (g *Gateway) editMessage(w http.ResponseWriter, r *http.Request, actorID string) {
	var body struct {
		Text string `json:"text"`
	}
	if !g.decodeBody(w, r, &body) {
		return
	}
	msg, err := g.messages.Edit(r.Context(), actorID, mux.Vars(r)["id"], body.Text)
	if err != nil {
		g.logAPIError(r, actorID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (g *Gateway) deleteMessage(w http.ResponseWriter, r *http.Request, actorID string) {
	if _, err := g.messages.SoftDelete(r.Context(), actorID, mux.Vars(r)["id"]); err != nil {
		g.logAPIError(r, actorID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) markRead(w http.ResponseWriter, r *http.Request, actorID string) {
	if _, err := g.messages.MarkConversationRead(r.Context(), actorID, mux.Vars(r)["id"]); err != nil {
		g.logAPIError(r, actorID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) listMessages(w http.ResponseWriter, r *http.Request, actorID string) {
	msgs, err := g.messages.History(r.Context(), actorID, mux.Vars(r)["id"])
	if err != nil {
		g.logAPIError(r, actorID, err)
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (g *Gateway) presenceState(w http.ResponseWriter, r *http.Request, _ string) {
	state, err := g.relay.State(r.Context(), mux.Vars(r)["actorId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (g *Gateway) logAPIError(r *http.Request, actorID string, err error) {
	switch chat.Code(err) {
	case chat.CodeStorage, chat.CodeInternal:
		g.log.Error("api_request_failed", "method", r.Method, "path", r.URL.Path, "actor", actorID, "error", err)
	default:
		g.log.Debug("api_request_rejected", "method", r.Method, "path", r.URL.Path, "actor", actorID, "error", err)
	}
}

// decodeBody reads a JSON body capped at MaxMessageSize, the same limit the
// WebSocket read path enforces.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxMessageSize)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: chat.CodeInvalidArgument, Message: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: chat.CodeInvalidArgument, Message: "invalid json"})
		return false
	}
	return true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForCode maps a wire error code to its HTTP status.
func statusForCode(code string) int {
	switch code {
	case chat.CodeUnauthenticated:
		return http.StatusUnauthorized
	case chat.CodeForbidden:
		return http.StatusForbidden
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeInvalidArgument:
		return http.StatusBadRequest
	case chat.CodeConflict:
		return http.StatusConflict
	case chat.CodeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := chat.Code(err)
	message := err.Error()
	if code == chat.CodeStorage || code == chat.CodeInternal {
		message = "internal error"
	}
	writeJSON(w, statusForCode(code), errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
