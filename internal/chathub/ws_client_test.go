package chathub_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nexochat/backend/internal/chathub"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topic = "messages:conversation_id=eq.c1"

func startStreamServer(t *testing.T, hub *chathub.Hub, broker realtime.Broker) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := broker.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Close()
			return
		}
		hub.Serve(conn, "user_A", topic, sub)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn) []models.ChangeEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []models.ChangeEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev models.ChangeEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	return out
}

func TestWebSocketClient_StreamsEvents(t *testing.T) {
	// Arrange
	broker := realtime.NewMemoryBroker()
	hub := chathub.NewHub()
	go hub.Run()
	defer hub.Shutdown()
	conn := startStreamServer(t, hub, broker)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	// Act
	ev, err := models.NewChangeEvent(models.TableMessages, models.ChangeInsert, "1",
		models.Message{ID: 1, ConversationID: "c1", Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), topic, ev))

	// Assert
	events := readEvents(t, conn)
	require.NotEmpty(t, events)
	assert.Equal(t, topic, events[0].Topic)
	assert.Equal(t, models.ChangeInsert, events[0].Type)
	var msg models.Message
	require.NoError(t, events[0].Decode(&msg))
	assert.Equal(t, "hello", msg.Content)
}

func TestWebSocketClient_ClosesWhenStreamFails(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	hub := chathub.NewHub()
	go hub.Run()
	defer hub.Shutdown()
	conn := startStreamServer(t, hub, broker)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	broker.Disconnect()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketClient_ShutdownSendsGoingAway(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	hub := chathub.NewHub()
	go hub.Run()
	conn := startStreamServer(t, hub, broker)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
