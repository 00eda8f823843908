package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meethub/meeting-service/internal/domain"
	"github.com/meethub/meeting-service/internal/postgres"
	"github.com/meethub/meeting-service/internal/service"
	httpmw "github.com/meethub/meeting-service/internal/transport/http/middleware"
)

type Handler struct {
	lifecycle *service.Lifecycle
	presence  *service.Presence
	chat      *service.Chat
}

func NewHandler(lifecycle *service.Lifecycle, presence *service.Presence, chat *service.Chat) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		presence:  presence,
		chat:      chat,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr translates the error taxonomy into statuses in one place, so
// every route answers the same failure the same way.
func writeErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrMeetingNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "meeting not found"})
	case errors.Is(err, domain.ErrParticipantNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "participant not found"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "owner only"})
	case errors.Is(err, domain.ErrAlreadyEnded):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "meeting already ended"})
	case errors.Is(err, domain.ErrAlreadyJoined):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "already joined"})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	case errors.Is(err, domain.ErrMeetingFull):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "meeting full"})
	case errors.Is(err, domain.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "busy, retry"})
	case errors.Is(err, postgres.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
	default:
		slog.Error("handler."+op+":", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// decodeStrict rejects unknown fields instead of silently filtering them.
func decodeStrict(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// POST /meetings
func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req CreateMeetingRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	m, err := h.lifecycle.Create(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.Title)
	if err != nil {
		writeErr(w, "CreateMeeting", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMeetingItem(m))
}

// GET /meetings/code/{code}
func (h *Handler) GetMeetingByCode(w http.ResponseWriter, r *http.Request) {
	m, err := h.lifecycle.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, "GetMeetingByCode", err)
		return
	}

	writeJSON(w, http.StatusOK, toMeetingItem(m))
}

// GET /meetings/code/{code}/can-join
func (h *Handler) CanJoin(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	decision, m, err := h.lifecycle.CheckCanJoin(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, "CanJoin", err)
		return
	}

	resp := CanJoinResponse{Decision: string(decision)}
	if m != nil {
		item := toMeetingItem(m)
		resp.Meeting = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /meetings/join
func (h *Handler) JoinMeeting(w http.ResponseWriter, r *http.Request) {
	var req JoinMeetingRequest
	if err := decodeStrict(r.Body, &req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	userID := httpmw.UserIDFromCtx(r.Context())

	m, err := h.lifecycle.GetByCode(r.Context(), req.Code)
	if err != nil {
		writeErr(w, "JoinMeeting", err)
		return
	}

	decision, _, err := h.lifecycle.CheckCanJoin(r.Context(), userID, req.Code)
	if err != nil {
		writeErr(w, "JoinMeeting", err)
		return
	}
	switch decision {
	case domain.JoinOK, domain.JoinAlreadyJoined:
	case domain.JoinEnded:
		writeErr(w, "JoinMeeting", domain.ErrAlreadyEnded)
		return
	case domain.JoinFull:
		writeErr(w, "JoinMeeting", domain.ErrMeetingFull)
		return
	default:
		writeErr(w, "JoinMeeting", domain.ErrMeetingNotFound)
		return
	}

	p, wasActive, err := h.presence.Join(r.Context(), m.ID, userID)
	if err != nil {
		writeErr(w, "JoinMeeting", err)
		return
	}

	writeJSON(w, http.StatusOK, JoinMeetingResponse{
		Meeting:       toMeetingItem(m),
		ParticipantID: p.ID,
		Rejoined:      wasActive,
	})
}

// POST /meetings/{id}/leave
func (h *Handler) LeaveMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	if err := h.presence.Leave(r.Context(), meetingID, userID, service.LeaveExplicit); err != nil {
		writeErr(w, "LeaveMeeting", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// POST /meetings/{id}/end
func (h *Handler) EndMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	m, err := h.lifecycle.End(r.Context(), meetingID, userID)
	if err != nil {
		writeErr(w, "EndMeeting", err)
		return
	}

	writeJSON(w, http.StatusOK, toMeetingItem(m))
}

// GET /meetings/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	items, err := h.presence.ActiveParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, "GetParticipants", err)
		return
	}

	resp := ParticipantsResponse{Items: make([]ParticipantItem, 0, len(items))}
	for _, p := range items {
		resp.Items = append(resp.Items, ParticipantItem{
			ID:          p.ID,
			UserID:      p.UserID,
			JoinedAt:    p.JoinedAt,
			MicOn:       p.MicOn,
			CameraOn:    p.CameraOn,
			ScreenShare: p.ScreenShare,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// PATCH /meetings/{id}/participants/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var upd domain.MediaUpdate
	if err := decodeStrict(r.Body, &upd); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	meetingID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	p, err := h.presence.UpdateMedia(r.Context(), meetingID, userID, upd)
	if err != nil {
		writeErr(w, "UpdateStatus", err)
		return
	}

	writeJSON(w, http.StatusOK, ParticipantItem{
		ID:          p.ID,
		UserID:      p.UserID,
		JoinedAt:    p.JoinedAt,
		MicOn:       p.MicOn,
		CameraOn:    p.CameraOn,
		ScreenShare: p.ScreenShare,
	})
}

// DELETE /meetings/{id}/participants/{userId}/kick
func (h *Handler) KickParticipant(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")
	ownerID := httpmw.UserIDFromCtx(r.Context())

	if err := h.presence.Kick(r.Context(), meetingID, ownerID, targetID); err != nil {
		writeErr(w, "KickParticipant", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "kicked"})
}

// PATCH /meetings/{id}/participants/{userId}/mute
func (h *Handler) MuteParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ForcedState *bool `json:"forcedState"` // nil toggles
	}
	if r.ContentLength > 0 {
		body, err := io.ReadAll(r.Body)
		if err != nil || (len(bytes.TrimSpace(body)) > 0 && decodeStrict(bytes.NewReader(body), &req) != nil) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
	}
	meetingID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")
	ownerID := httpmw.UserIDFromCtx(r.Context())

	p, err := h.presence.SetMute(r.Context(), meetingID, ownerID, targetID, req.ForcedState)
	if err != nil {
		writeErr(w, "MuteParticipant", err)
		return
	}

	writeJSON(w, http.StatusOK, MutedResponse{UserID: p.UserID, MicOn: p.MicOn})
}

// GET /meetings/{id}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "id")

	st, err := h.presence.Stats(r.Context(), meetingID)
	if err != nil {
		writeErr(w, "GetStats", err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{MeetingID: meetingID, MeetingStats: *st})
}

// GET /meetings/{id}/messages?cursor=&limit=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "id")
	cursor := r.URL.Query().Get("cursor")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	items, next, err := h.chat.Recent(r.Context(), meetingID, cursor, limit)
	if err != nil {
		writeErr(w, "GetMessages", err)
		return
	}

	resp := MessagesResponse{Items: make([]ChatMessageItem, 0, len(items)), NextCursor: next}
	for _, m := range items {
		resp.Items = append(resp.Items, ChatMessageItem{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
