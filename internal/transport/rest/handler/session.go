package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"troll/internal/client"
	"troll/internal/repository"
	"troll/internal/service"
	"troll/internal/transport/rest/middleware"
	"troll/internal/transport/ws"
)

// SessionHandler handles session lifecycle and in-round action endpoints.
type SessionHandler struct {
	gameSvc *service.GameService
	wsHub   *ws.Hub
}

func NewSessionHandler(gameSvc *service.GameService, wsHub *ws.Hub) *SessionHandler {
	return &SessionHandler{gameSvc: gameSvc, wsHub: wsHub}
}

// CreateSessionRequest is the request body for creating or joining a session.
// DeviceID keys the caller's persisted identity; a missing one gets minted
// so stateless callers still work.
type CreateSessionRequest struct {
	DeviceID string `json:"deviceId"`
	Nickname string `json:"nickname"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.New().String()
	}

	grant, err := h.gameSvc.CreateSession(r.Context(), req.DeviceID, req.Nickname)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"code":     grant.Code,
		"userId":   grant.UserID,
		"token":    grant.Token,
		"deviceId": req.DeviceID,
	})
}

// Join handles POST /v1/sessions/{code}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.New().String()
	}

	grant, err := h.gameSvc.JoinSession(r.Context(), req.DeviceID, req.Nickname, code)
	if err != nil {
		writeActionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"code":     grant.Code,
		"userId":   grant.UserID,
		"token":    grant.Token,
		"deviceId": req.DeviceID,
	})
}

// Start handles POST /v1/sessions/{code}/start (creator only)
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.Start(r.Context(), code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// SubmitAnswerRequest is the request body for submitting a decoy answer.
type SubmitAnswerRequest struct {
	Text string `json:"text"`
}

// SubmitAnswer handles POST /v1/sessions/{code}/answers
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gameSvc.Submit(r.Context(), code, claims.UserID, req.Text); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

// SelectRequest is the request body for picking an answer.
type SelectRequest struct {
	MessageID string `json:"messageId"`
}

// Select handles POST /v1/sessions/{code}/selections
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gameSvc.Select(r.Context(), code, claims.UserID, req.MessageID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "selected"})
}

// Ready handles POST /v1/sessions/{code}/ready
func (h *SessionHandler) Ready(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.Ready(r.Context(), code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Advance handles POST /v1/sessions/{code}/advance (creator only)
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.AdvanceRound(r.Context(), code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "advanced"})
}

// Proceed handles POST /v1/sessions/{code}/proceed, acknowledging the round
// summary and unlocking the next round locally.
func (h *SessionHandler) Proceed(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.Proceed(code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "proceeded"})
}

// Results handles POST /v1/sessions/{code}/results, opening the final
// results view and its scoreboard stream.
func (h *SessionHandler) Results(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.ViewResults(code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// State handles GET /v1/sessions/{code}/state, a point-in-time snapshot for
// clients not holding the WebSocket open.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	st, err := h.gameSvc.State(code, claims.UserID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Scoreboard handles GET /v1/sessions/{code}/scoreboard
func (h *SessionHandler) Scoreboard(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	board, err := h.gameSvc.Scoreboard(r.Context(), code, claims.UserID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scoreboard": board})
}

// Leave handles POST /v1/sessions/{code}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.LeaveSession(r.Context(), code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// End handles POST /v1/sessions/{code}/end (creator only)
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	code, claims := mux.Vars(r)["code"], middleware.GetClaims(r.Context())
	if err := h.gameSvc.EndSession(r.Context(), code, claims.UserID); err != nil {
		writeActionError(w, err)
		return
	}
	h.wsHub.DisconnectSession(code)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// writeActionError maps engine errors onto HTTP statuses.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrNotInSession):
		writeError(w, http.StatusForbidden, "not in session")
	case errors.Is(err, client.ErrNotCreator):
		writeError(w, http.StatusForbidden, "creator only")
	case errors.Is(err, repository.ErrDuplicateAnswer):
		writeError(w, http.StatusConflict, "answer already submitted by another player")
	case errors.Is(err, repository.ErrEmptyAnswer):
		writeError(w, http.StatusBadRequest, "answer must not be empty")
	case errors.Is(err, client.ErrNotAllowed),
		errors.Is(err, client.ErrAlreadyJoined),
		errors.Is(err, client.ErrNotJoined):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
