package broadcast_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/infrastructure/broadcast"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialBroadcaster(t *testing.T, b *broadcast.Broadcaster) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublish_DeliversNotificationToSubscriber(t *testing.T) {
	b := broadcast.NewBroadcaster(16, zap.NewNop().Sugar())
	defer b.Close(context.Background())

	conn := dialBroadcaster(t, b)

	b.Publish(domain.Notification{
		Title:    "Upload complete",
		Body:     "cam1_20250901.mp4 uploaded",
		Severity: domain.SeveritySuccess,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "notification", msg["type"])
	assert.Equal(t, "Upload complete: cam1_20250901.mp4 uploaded", msg["message"])
	assert.Equal(t, "success", msg["notification_type"])
}

func TestPublish_DeliversRecordingState(t *testing.T) {
	b := broadcast.NewBroadcaster(16, zap.NewNop().Sugar())
	defer b.Close(context.Background())

	conn := dialBroadcaster(t, b)

	b.Publish(domain.RecordingState{
		StreamName:    "cam1",
		State:         domain.SessionRunning,
		Recording:     true,
		ActiveStreams: 1,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "recording_state", msg["type"])
	assert.Equal(t, true, msg["recording"])
	assert.Equal(t, float64(1), msg["active_streams"])
}

func TestPublish_RecordingStateWhileStarting(t *testing.T) {
	b := broadcast.NewBroadcaster(16, zap.NewNop().Sugar())
	defer b.Close(context.Background())

	conn := dialBroadcaster(t, b)

	// A Starting session records even though nothing is confirmed
	// Running yet.
	b.Publish(domain.RecordingState{
		StreamName:    "cam1",
		State:         domain.SessionStarting,
		Recording:     true,
		ActiveStreams: 0,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "recording_state", msg["type"])
	assert.Equal(t, true, msg["recording"])
	assert.Equal(t, float64(0), msg["active_streams"])
}

func TestPublish_NeverBlocksWithoutSubscribers(t *testing.T) {
	b := broadcast.NewBroadcaster(2, zap.NewNop().Sugar())
	defer b.Close(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(domain.Notification{Body: "spam", Severity: domain.SeverityInfo})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
}
