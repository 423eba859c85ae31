package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"realtime-chat-service/internal/auth"
	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/observability"
	"realtime-chat-service/internal/rabbitmq"
	"realtime-chat-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SocketHandler owns the websocket endpoint: handshake authentication,
// registration, the per-connection dispatch loop and teardown.
type SocketHandler struct {
	hub       *Hub
	resolver  auth.IdentityResolver
	presence  *PresencePublisher
	convRepo  repositories.ConversationRepository
	msgRepo   repositories.MessageRepository
	userRepo  repositories.UserRepository
	publisher rabbitmq.Publisher
	log       *zap.Logger
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(
	hub *Hub,
	resolver auth.IdentityResolver,
	presence *PresencePublisher,
	convRepo repositories.ConversationRepository,
	msgRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	publisher rabbitmq.Publisher,
	log *zap.Logger,
) *SocketHandler {
	return &SocketHandler{
		hub:       hub,
		resolver:  resolver,
		presence:  presence,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		publisher: publisher,
		log:       log,
	}
}

// Handle authenticates the handshake, upgrades the connection and runs the
// connection lifecycle. Identity resolution happens exactly once, before
// any registration; a bad credential never creates partial state.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}

	user, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, user.ID, user.Username, info)

	// net/http cancels the request context as soon as this handler returns,
	// hijacked connection or not. Dispatch and teardown run for the lifetime
	// of the connection, so they get a context that keeps the request's
	// values but not its cancelation.
	connCtx := context.WithoutCancel(ctx)

	first := h.hub.Register(client)
	observability.IncWSActive()
	h.publishLifecycle(connCtx, client, "ws_connect", "")
	if first {
		h.presence.UserConnected(connCtx, user.ID)
	}

	go client.writePump()
	go h.readLoop(connCtx, client)
}

// readLoop processes inbound frames in arrival order so one client's events
// are never reordered, and tears the connection down on exit.
func (h *SocketHandler) readLoop(ctx context.Context, client *Client) {
	var closeReason string
	defer func() {
		last := h.hub.Deregister(client)
		observability.DecWSActive()
		h.publishLifecycle(ctx, client, "ws_disconnect", closeReason)
		if last {
			h.presence.UserDisconnected(ctx, client.UserID)
		}
		client.shutdown()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.publishLifecycle(ctx, client, "ws_error", closeReason)
			}
			return
		}

		event, err := DecodeInbound(raw)
		if err != nil {
			client.Send(models.EventMessageError, models.MessageErrorPayload{Reason: err.Error()})
			continue
		}

		observability.IncWSEvent(event.EventName())
		h.dispatch(ctx, client, event)
	}
}

// dispatch routes one typed inbound event to its handler. The switch covers
// the closed event set; adding a variant without handling it here is a
// compile-visible omission.
func (h *SocketHandler) dispatch(ctx context.Context, client *Client, event Inbound) {
	switch e := event.(type) {
	case *JoinConversation:
		h.handleJoin(ctx, client, e)
	case *LeaveConversation:
		h.handleLeave(client, e)
	case *SendMessage:
		h.handleSendMessage(ctx, client, e)
	case *TypingStart:
		h.handleTyping(client, e.ConversationID, e.UserName, true)
	case *TypingStop:
		h.handleTyping(client, e.ConversationID, e.UserName, false)
	case *MarkAsRead:
		h.handleMarkAsRead(client, e)
	case *EditMessage:
		h.handleEditMessage(ctx, client, e)
	case *PingHealth:
		client.Send(models.EventPongHealth, models.PongPayload{ServerTime: time.Now().UTC()})
	default:
		client.Send(models.EventMessageError, models.MessageErrorPayload{Reason: "unsupported event"})
	}
}

func (h *SocketHandler) publishLifecycle(ctx context.Context, client *Client, name, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     client.Info.ConnID,
			"duration_ms": time.Since(client.Info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   client.UserID,
			"device_id": client.Info.DeviceID,
			"ip":        client.Info.IP,
		},
	}

	headers := observability.BuildHeaders(client.Info.RequestID, client.Info.TraceID)
	err := h.publisher.Publish(ctx, "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, headers)
	if err != nil {
		h.log.Debug("lifecycle publish failed", zap.String("event", name), zap.Error(err))
	}
}
