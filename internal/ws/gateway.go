package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/audit"
	"github.com/converse/chat-server-go/internal/auth"
	"github.com/converse/chat-server-go/internal/config"
	"github.com/converse/chat-server-go/internal/metrics"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/model"
	"github.com/converse/chat-server-go/internal/service"
)

const (
	readDeadline = 60 * time.Second
	eventTimeout = 5 * time.Second
)

// Gateway authenticates persistent connections against the session store,
// subscribes each connection to its user channel plus every conversation the
// user belongs to, and dispatches inbound events to the membership and
// delivery services.
type Gateway struct {
	hub           *Hub
	authenticator *auth.Authenticator
	membership    *service.MembershipService
	messages      *service.MessageService
	upgrader      websocket.Upgrader
}

func NewGateway(
	hub *Hub,
	authenticator *auth.Authenticator,
	membership *service.MembershipService,
	messages *service.MessageService,
	allowedOrigin string,
) *Gateway {
	return &Gateway{
		hub:           hub,
		authenticator: authenticator,
		membership:    membership,
		messages:      messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// ServeHTTP runs the connection handshake. The session token comes from the
// handshake cookie only, so no application event can be processed before
// authentication; a missing or invalid token rejects the connection before
// the upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionTokenFromRequest(r)
	result := g.authenticator.Authenticate(r.Context(), token)

	if !result.Authenticated() {
		metrics.HandshakeRejected.Inc()
		audit.Log(audit.Event{
			Type:      audit.EventWSRejected,
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
		return
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConn(result.UserID, wsConn)
	conn.Start()

	// Eager bulk-subscribe before any event is read: joining conversation
	// channels lazily would let the connection miss messages already in
	// flight when it connected.
	if err := g.activate(r.Context(), conn); err != nil {
		log.Error().Err(err).Str("userId", conn.UserID).Msg("connection activation failed")
		conn.Close(websocket.CloseInternalServerErr, "activation failed")
		return
	}

	metrics.ConnectionsActive.Inc()
	audit.Log(audit.Event{
		Type:      audit.EventWSConnect,
		UserID:    conn.UserID,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	log.Info().
		Str("userId", conn.UserID).
		Str("connId", conn.ID).
		Msg("connection active")

	g.readLoop(conn, wsConn)

	g.hub.Detach(conn)
	conn.Close(websocket.CloseNormalClosure, "")
	metrics.ConnectionsActive.Dec()
	log.Info().
		Str("userId", conn.UserID).
		Str("connId", conn.ID).
		Msg("connection closed")
}

func (g *Gateway) activate(ctx context.Context, conn *Conn) error {
	g.hub.Subscribe(conn.UserID, conn)

	conversationIDs, err := g.membership.ListConversations(ctx, conn.UserID)
	if err != nil {
		g.hub.Detach(conn)
		return err
	}
	for _, id := range conversationIDs {
		g.hub.Subscribe(id, conn)
	}
	return nil
}

// readLoop processes inbound frames in arrival order, one at a time, until
// the transport disconnects.
func (g *Gateway) readLoop(conn *Conn, wsConn *websocket.Conn) {
	wsConn.SetReadLimit(config.WSReadLimit)
	_ = wsConn.SetReadDeadline(time.Now().Add(readDeadline))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(readDeadline))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.sendError(conn, "malformed frame")
			continue
		}

		g.dispatch(conn, frame)
	}
}

func (g *Gateway) dispatch(conn *Conn, frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch frame.Event {
	case EventSendMessage:
		g.handleSendMessage(ctx, conn, frame.Data)
	case EventTypingStart:
		g.handleTyping(ctx, conn, frame.Data, EventUserTyping)
	case EventTypingStop:
		g.handleTyping(ctx, conn, frame.Data, EventUserStopTyping)
	case EventMessageDelivered:
		g.handleMessageDelivered(ctx, conn, frame.Data)
	case EventMessagesRead:
		g.handleMessagesRead(ctx, conn, frame.Data)
	default:
		g.sendError(conn, "unknown event: "+frame.Event)
	}
}

func (g *Gateway) handleSendMessage(ctx context.Context, conn *Conn, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "malformed send-message payload")
		return
	}
	if payload.ConversationID == "" || payload.Content == "" {
		g.sendError(conn, "conversationId and content are required")
		return
	}

	member, err := g.membership.IsMember(ctx, conn.UserID, payload.ConversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", conn.UserID).Msg("membership check failed")
		g.sendError(conn, "internal error")
		return
	}
	if !member {
		g.sendError(conn, "Unauthorized")
		return
	}

	msg, err := g.messages.CreateMessage(ctx, payload.ConversationID, conn.UserID, payload.Content)
	if err != nil {
		// Transactional write failed: nothing was persisted, so nothing
		// is broadcast either.
		log.Error().Err(err).Str("userId", conn.UserID).Msg("create message failed")
		g.sendError(conn, "failed to send message")
		return
	}
	metrics.MessagesPersisted.Inc()

	g.broadcast(ctx, conn, payload.ConversationID, EventNewMessage, msg, false)
}

func (g *Gateway) handleTyping(ctx context.Context, conn *Conn, data json.RawMessage, outEvent string) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "malformed typing payload")
		return
	}
	if payload.ConversationID == "" {
		g.sendError(conn, "conversationId is required")
		return
	}

	// Broadcast-only: no persistence and no membership check.
	g.broadcast(ctx, conn, payload.ConversationID, outEvent, UserTypingPayload{
		UserID:         conn.UserID,
		ConversationID: payload.ConversationID,
	}, true)
}

func (g *Gateway) handleMessageDelivered(ctx context.Context, conn *Conn, data json.RawMessage) {
	var payload MessageDeliveredPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "malformed message-delivered payload")
		return
	}
	if payload.MessageID == "" || payload.ConversationID == "" {
		g.sendError(conn, "messageId and conversationId are required")
		return
	}

	changed, err := g.messages.AdvanceStatus(ctx, payload.MessageID, conn.UserID, model.DeliveryDelivered)
	if err != nil {
		log.Error().Err(err).Str("messageId", payload.MessageID).Msg("advance status failed")
		g.sendError(conn, "failed to update message status")
		return
	}
	if !changed {
		// Already delivered or read; re-applying is a no-op.
		return
	}

	g.broadcast(ctx, conn, payload.ConversationID, EventMessageStatusUpdated, StatusUpdatedPayload{
		MessageID: payload.MessageID,
		UserID:    conn.UserID,
		Status:    string(model.DeliveryDelivered),
	}, false)
}

func (g *Gateway) handleMessagesRead(ctx context.Context, conn *Conn, data json.RawMessage) {
	var payload MessagesReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(conn, "malformed messages-read payload")
		return
	}
	if payload.ConversationID == "" || len(payload.MessageIDs) == 0 {
		g.sendError(conn, "conversationId and messageIds are required")
		return
	}

	member, err := g.membership.IsMember(ctx, conn.UserID, payload.ConversationID)
	if err != nil {
		log.Error().Err(err).Str("userId", conn.UserID).Msg("membership check failed")
		return
	}
	if !member {
		// Silently dropped: a non-member learns nothing from the event.
		return
	}

	updated, err := g.messages.AdvanceStatusBulk(ctx, payload.MessageIDs, conn.UserID, model.DeliveryRead)
	if err != nil {
		log.Error().Err(err).Str("userId", conn.UserID).Msg("advance status bulk failed")
		g.sendError(conn, "failed to update message status")
		return
	}
	if len(updated) == 0 {
		return
	}

	g.broadcast(ctx, conn, payload.ConversationID, EventMessagesReadUpdate, ReadUpdatePayload{
		MessageIDs: updated,
		UserID:     conn.UserID,
	}, true)
}

func (g *Gateway) broadcast(ctx context.Context, conn *Conn, channel, event string, payload any, excludeOrigin bool) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to build frame")
		return
	}

	excludeID := ""
	if excludeOrigin {
		excludeID = conn.ID
	}

	if err := g.hub.Publish(ctx, channel, frame, excludeID); err != nil {
		log.Error().Err(err).Str("channel", channel).Str("event", event).Msg("publish failed")
	}
}

// sendError emits a connection-local error event; it is never broadcast.
func (g *Gateway) sendError(conn *Conn, reason string) {
	frame, err := NewFrame(EventError, reason)
	if err != nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.Send(payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
