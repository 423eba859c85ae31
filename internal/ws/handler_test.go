package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-chat-service/internal/mocks"
	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

func TestDispatchContextOutlivesHandshake(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	presenceRepo := new(mocks.PresenceRepositoryMock)
	publisher := new(mocks.PublisherMock)
	resolver := new(mocks.ResolverMock)
	log := zap.NewNop()

	resolver.On("Resolve", mock.Anything, "token-1").Return(models.User{ID: "alice", Username: "Alice"}, nil)
	presenceRepo.On("SetPresence", mock.Anything, "alice", mock.Anything, mock.Anything).Return(nil)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// The storage layer records the context state it is handed. Events only
	// arrive after the handshake handler has long returned, so a dispatch
	// context tied to the request would already be canceled here.
	ctxErrs := make(chan error, 1)
	convRepo.On("GetConversation", mock.Anything, "c1").Run(func(args mock.Arguments) {
		ctxErrs <- args.Get(0).(context.Context).Err()
	}).Return(nil, repositories.ErrConversationNotFound)

	presence := NewPresencePublisher(hub, presenceRepo, log)
	handler := NewSocketHandler(hub, resolver, presence, convRepo, msgRepo, userRepo, publisher, log)

	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=token-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := `{"event":"send_message","data":{"conversation_id":"c1","content":"hi"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case ctxErr := <-ctxErrs:
		assert.NoError(t, ctxErr, "storage calls after the handshake must see a live context")
	case <-time.After(2 * time.Second):
		t.Fatal("send_message never reached the conversation repository")
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	resolver := new(mocks.ResolverMock)
	resolver.On("Resolve", mock.Anything, "bad").Return(nil, assert.AnError)

	presence := NewPresencePublisher(hub, new(mocks.PresenceRepositoryMock), zap.NewNop())
	handler := NewSocketHandler(hub, resolver, presence,
		new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock),
		new(mocks.UserRepositoryMock), new(mocks.PublisherMock), zap.NewNop())

	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bad"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, 0, hub.ClientCount(), "a refused handshake must not register a connection")
}
