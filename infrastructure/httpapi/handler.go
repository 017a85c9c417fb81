package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"stranger-chat/domain"
	"stranger-chat/errors"
	"stranger-chat/services"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Handler struct {
	log      *slog.Logger
	chat     services.IChatService
	store    Pinger
	validate *validator.Validate
}

func NewHandler(log *slog.Logger, chat services.IChatService, store Pinger) *Handler {
	return &Handler{log: log, chat: chat, store: store, validate: validator.New()}
}

type RegisterRequest struct {
	Username  string `json:"username" validate:"max=64"`
	FirstName string `json:"first_name" validate:"max=128"`
	LastName  string `json:"last_name" validate:"max=128"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type ReportRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

type ParticipantResponse struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

type StatusResponse struct {
	State      string    `json:"state"`
	SessionID  *string   `json:"session_id,omitempty"`
	Active     bool      `json:"active"`
	LastActive time.Time `json:"last_active"`
}

type OutcomeResponse struct {
	Outcome string `json:"outcome"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}

func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a core error to a status code.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrParticipantNotFound), errors.Is(err, errors.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrAlreadyActive),
		errors.Is(err, errors.ErrParticipantInactive),
		errors.Is(err, errors.ErrNotInSession):
		status = http.StatusConflict
	case errors.IsInformational(err):
		status = http.StatusGone
	case errors.Is(err, errors.ErrEmptyContent), errors.Is(err, errors.ErrContentTooLong):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	}
	h.Error(w, status, err.Error())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func participantID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// RequireParticipantID rejects blank identities before any handler can register or look them up.
func (h *Handler) RequireParticipantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if participantID(r) == "" {
			h.Error(w, http.StatusBadRequest, "participant id is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	participant, err := h.chat.Register(r.Context(), participantID(r), domain.Profile{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, ParticipantResponse{
		ID:           participant.ID,
		State:        participant.State.String(),
		Active:       participant.Active,
		RegisteredAt: participant.RegisteredAt,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.chat.GetStatus(r.Context(), participantID(r))
	if err != nil {
		h.Fail(w, err)
		return
	}
	resp := StatusResponse{
		State:      status.State.String(),
		Active:     status.Active,
		LastActive: status.LastActive,
	}
	if status.SessionID != nil {
		resp.SessionID = lo.ToPtr(status.SessionID.String())
	}
	h.JSON(w, http.StatusOK, resp)
}

func (h *Handler) BeginSearch(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.chat.BeginSearch)
}

func (h *Handler) CancelSearch(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.chat.CancelSearch)
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.chat.EndSession)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.chat.Leave)
}

func (h *Handler) outcome(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, participantID string) (domain.Outcome, error)) {
	outcome, err := op(r.Context(), participantID(r))
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, OutcomeResponse{Outcome: string(outcome)})
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.OnDisconnect(r.Context(), participantID(r)); err != nil {
		h.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !h.decode(w, r, &req) {
		return
	}
	outcome, err := h.chat.Report(r.Context(), participantID(r), req.Reason)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, OutcomeResponse{Outcome: string(outcome)})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	message, err := h.chat.Deliver(r.Context(), participantID(r), req.Content)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, toMessageResponse(message))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid session ID format")
		return
	}
	messages, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, HistoryResponse{Messages: lo.Map(messages, func(m domain.ChatMessage, _ int) MessageResponse {
		return toMessageResponse(m)
	})})
}

func toMessageResponse(m domain.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID.String(),
		SessionID: m.SessionID.String(),
		From:      m.SenderID,
		To:        m.RecipientID,
		Content:   m.Content,
		SentAt:    m.SentAt,
	}
}
