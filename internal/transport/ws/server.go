package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meethub/meeting-service/internal/domain"
	"github.com/meethub/meeting-service/internal/service"
)

type LifecycleSvc interface {
	GetByCode(ctx context.Context, code string) (*domain.Meeting, error)
	CheckCanJoin(ctx context.Context, userID, code string) (domain.JoinDecision, *domain.Meeting, error)
	End(ctx context.Context, meetingID, requesterID string) (*domain.Meeting, error)
}

type PresenceSvc interface {
	Join(ctx context.Context, meetingID, userID string) (*domain.Participant, bool, error)
	Leave(ctx context.Context, meetingID, userID string, cause service.LeaveCause) error
	UpdateMedia(ctx context.Context, meetingID, userID string, upd domain.MediaUpdate) (*domain.Participant, error)
	Kick(ctx context.Context, meetingID, ownerID, targetUserID string) error
	SetMute(ctx context.Context, meetingID, ownerID, targetUserID string, forced *bool) (*domain.Participant, error)
	ActiveParticipants(ctx context.Context, meetingID string) ([]domain.Participant, error)
}

type ChatSvc interface {
	Append(ctx context.Context, meetingID, senderID, content string) (*domain.ChatMessage, error)
	Recent(ctx context.Context, meetingID, cursor string, limit int) ([]domain.ChatMessage, string, error)
}

type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Server is the signaling gateway: it authenticates connections, binds them
// to rooms and dispatches events. Every business decision is delegated to
// the lifecycle and presence services.
type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	lifecycle LifecycleSvc
	presence  PresenceSvc
	chat      ChatSvc
	verifier  TokenVerifier
}

func NewServer(hub *Hub, lifecycle LifecycleSvc, presence PresenceSvc, chat ChatSvc, verifier TokenVerifier) *Server {
	return &Server{
		hub:       hub,
		lifecycle: lifecycle,
		presence:  presence,
		chat:      chat,
		verifier:  verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws?access_token=... (или Authorization: Bearer ...)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(auth[7:])
		}
	}

	userID, err := s.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "user", userID, "err", err)
		return
	}

	c := newConn(conn, userID)
	slog.Info("ws connected", "user", userID)

	go c.writeLoop()
	s.readLoop(c)

	// network drop, tab close or explicit close all resolve to a leave
	if meetingID := c.MeetingID(); meetingID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.presence.Leave(ctx, meetingID, userID, service.LeaveDisconnect); err != nil {
			slog.Warn("leave on disconnect failed", "meeting", meetingID, "user", userID, "err", err)
		}
		cancel()
		s.hub.Unbind(c)
	}
	c.close()
	slog.Info("ws disconnected", "user", userID)
}

func (s *Server) readLoop(c *Conn) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read", "user", c.userID, "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.queue(errorMessage(domain.ErrInvalidRequest))
			continue
		}

		// per-event boundary: a failed request answers with an error event
		// and never kills the connection
		if err := s.dispatch(c, msg); err != nil {
			c.queue(errorMessage(err))
		}
	}
}

func (s *Server) dispatch(c *Conn, msg Message) error {
	ctx := context.Background()

	switch msg.Type {
	case TypeJoinMeeting:
		return s.handleJoin(ctx, c, msg)
	case TypeLeaveMeeting:
		return s.handleLeave(ctx, c, msg)
	case TypeUpdateStatus:
		return s.handleUpdateStatus(ctx, c, msg)
	case TypeSendMessage:
		return s.handleSendMessage(ctx, c, msg)
	case TypeEndMeeting:
		return s.handleEndMeeting(ctx, c, msg)
	case TypeKick:
		return s.handleKick(ctx, c, msg)
	case TypeMute:
		return s.handleMute(ctx, c, msg)
	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCIce:
		return s.handleSignal(c, msg)
	case TypeTypingStart, TypeTypingStop:
		return s.handleTyping(c, msg)
	case TypeWhiteboard:
		return s.handleWhiteboard(c, msg)
	default:
		return domain.ErrInvalidRequest
	}
}

func (s *Server) handleJoin(ctx context.Context, c *Conn, msg Message) error {
	var p JoinPayload
	if err := decode(msg.Payload, &p); err != nil || p.Code == "" {
		return domain.ErrInvalidRequest
	}

	// lookup by code runs the lazy expiry check
	m, err := s.lifecycle.GetByCode(ctx, p.Code)
	if err != nil {
		return err
	}

	decision, _, err := s.lifecycle.CheckCanJoin(ctx, c.userID, p.Code)
	if err != nil {
		return err
	}
	switch decision {
	case domain.JoinOK, domain.JoinAlreadyJoined:
	case domain.JoinNotFound:
		return domain.ErrMeetingNotFound
	case domain.JoinEnded:
		return domain.ErrAlreadyEnded
	case domain.JoinFull:
		return domain.ErrMeetingFull
	default:
		return domain.ErrInvalidRequest
	}

	// bind before join so the connection sees events from its own commit on
	s.hub.Bind(c, m.ID)
	if _, _, err := s.presence.Join(ctx, m.ID, c.userID); err != nil {
		s.hub.Unbind(c)
		return err
	}

	return s.sendState(ctx, c, m)
}

// sendState replies to the joiner with meeting info, the current roster and
// recent chat history.
func (s *Server) sendState(ctx context.Context, c *Conn, m *domain.Meeting) error {
	parts, err := s.presence.ActiveParticipants(ctx, m.ID)
	if err != nil {
		return err
	}
	items := make([]service.ParticipantPayload, 0, len(parts))
	for i := range parts {
		items = append(items, service.ParticipantPayload{
			ID:          parts[i].ID,
			MeetingID:   parts[i].MeetingID,
			UserID:      parts[i].UserID,
			JoinedAt:    parts[i].JoinedAt,
			MicOn:       parts[i].MicOn,
			CameraOn:    parts[i].CameraOn,
			ScreenShare: parts[i].ScreenShare,
		})
	}

	var messages []service.MessagePayload
	if s.chat != nil {
		recent, _, err := s.chat.Recent(ctx, m.ID, "", 50)
		if err != nil {
			slog.Warn("chat history failed", "meeting", m.ID, "err", err)
		}
		messages = make([]service.MessagePayload, 0, len(recent))
		for i := range recent {
			messages = append(messages, service.MessagePayload{
				ID:        recent[i].ID,
				MeetingID: recent[i].MeetingID,
				SenderID:  recent[i].SenderID,
				Content:   recent[i].Content,
				CreatedAt: recent[i].CreatedAt,
			})
		}
	}

	c.queue(Message{
		Type: TypeMeetingState,
		Payload: MeetingStatePayload{
			Meeting: MeetingInfo{
				ID:        m.ID,
				Code:      m.Code,
				OwnerID:   m.OwnerID,
				Title:     m.Title,
				CreatedAt: m.CreatedAt,
				EndedAt:   m.EndedAt,
			},
			Participants: items,
			Messages:     messages,
		},
	})
	return nil
}

func (s *Server) handleLeave(ctx context.Context, c *Conn, msg Message) error {
	var p LeavePayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	if err := s.presence.Leave(ctx, p.MeetingID, c.userID, service.LeaveExplicit); err != nil {
		return err
	}
	s.hub.Unbind(c)
	return nil
}

func (s *Server) handleUpdateStatus(ctx context.Context, c *Conn, msg Message) error {
	var p UpdateStatusPayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	_, err := s.presence.UpdateMedia(ctx, p.MeetingID, c.userID, p.MediaUpdate)
	return err
}

func (s *Server) handleSendMessage(ctx context.Context, c *Conn, msg Message) error {
	var p ChatSendPayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	_, err := s.chat.Append(ctx, p.MeetingID, c.userID, p.Content)
	return err
}

func (s *Server) handleEndMeeting(ctx context.Context, c *Conn, msg Message) error {
	var p EndPayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}

	_, err := s.lifecycle.End(ctx, p.MeetingID, c.userID)
	return err
}

func (s *Server) handleKick(ctx context.Context, c *Conn, msg Message) error {
	var p TargetPayload
	if err := decode(msg.Payload, &p); err != nil || p.TargetUserID == "" {
		return domain.ErrInvalidRequest
	}

	return s.presence.Kick(ctx, p.MeetingID, c.userID, p.TargetUserID)
}

func (s *Server) handleMute(ctx context.Context, c *Conn, msg Message) error {
	var p MutePayload
	if err := decode(msg.Payload, &p); err != nil || p.TargetUserID == "" {
		return domain.ErrInvalidRequest
	}

	_, err := s.presence.SetMute(ctx, p.MeetingID, c.userID, p.TargetUserID, p.ForcedState)
	return err
}

// handleSignal forwards WebRTC signaling verbatim to the target connection.
// Ordering is whatever the sender produced; the relay never reorders.
func (s *Server) handleSignal(c *Conn, msg Message) error {
	var p SignalPayload
	if err := decode(msg.Payload, &p); err != nil || p.TargetUserID == "" {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	s.hub.Notify(p.MeetingID, p.TargetUserID, msg.Type, SignalRelayPayload{
		MeetingID:  p.MeetingID,
		FromUserID: c.userID,
		Payload:    p.Payload,
	})
	return nil
}

func (s *Server) handleTyping(c *Conn, msg Message) error {
	var p TypingPayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	s.hub.BroadcastExcept(p.MeetingID, c.userID, msg.Type, TypingPayload{
		MeetingID: p.MeetingID,
		UserID:    c.userID,
	})
	return nil
}

func (s *Server) handleWhiteboard(c *Conn, msg Message) error {
	var p WhiteboardPayload
	if err := decode(msg.Payload, &p); err != nil {
		return domain.ErrInvalidRequest
	}
	if err := s.requireBound(c, p.MeetingID); err != nil {
		return err
	}

	// strokes are opaque to the gateway
	s.hub.BroadcastExcept(p.MeetingID, c.userID, TypeWhiteboard, WhiteboardPayload{
		MeetingID: p.MeetingID,
		UserID:    c.userID,
		Payload:   p.Payload,
	})
	return nil
}

func (s *Server) requireBound(c *Conn, meetingID string) error {
	if meetingID == "" || c.MeetingID() != meetingID {
		return domain.ErrInvalidRequest
	}
	return nil
}
