package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"streamcorder/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The push channel is only reachable from the host-local UI.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Broadcaster pushes state-change and notification events to connected
// UI clients. Publish is fire-and-forget: events go through a bounded
// buffer with a drop-oldest overflow policy so producers never block,
// and delivery failures are only logged.
type Broadcaster struct {
	events chan domain.Event

	subscribers map[*subscriber]struct{}
	mu          sync.Mutex

	writeTimeout time.Duration
	done         chan struct{}
	wg           sync.WaitGroup

	logger *zap.SugaredLogger
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) writeJSON(v interface{}, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteJSON(v)
}

// NewBroadcaster creates a broadcaster with the given event buffer size
// and starts its delivery pump.
func NewBroadcaster(bufferSize int, logger *zap.SugaredLogger) *Broadcaster {
	b := &Broadcaster{
		events:       make(chan domain.Event, bufferSize),
		subscribers:  make(map[*subscriber]struct{}),
		writeTimeout: 10 * time.Second,
		done:         make(chan struct{}),
		logger:       logger,
	}
	b.wg.Add(1)
	go b.pump()
	return b
}

// Publish queues an event for delivery. When the buffer is full the
// oldest undelivered event is dropped in favour of the new one.
func (b *Broadcaster) Publish(event domain.Event) {
	select {
	case b.events <- event:
		return
	default:
	}

	select {
	case dropped := <-b.events:
		b.logger.Debugw("event buffer full, dropping oldest", "kind", dropped.Kind())
	default:
	}

	select {
	case b.events <- event:
	default:
	}
}

func (b *Broadcaster) pump() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case event := <-b.events:
			b.deliver(event)
		}
	}
}

func (b *Broadcaster) deliver(event domain.Event) {
	msg := encodeEvent(event)

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.writeJSON(msg, b.writeTimeout); err != nil {
			b.logger.Infow("dropping push subscriber", "error", err)
			b.remove(s)
		}
	}
}

func (b *Broadcaster) remove(s *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	s.conn.Close()
}

// HandleWebSocket upgrades the request and registers the client as a
// push subscriber. Inbound messages are discarded; the channel is
// server-to-UI only.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Infow("push subscriber connected", "subscribers", count)

	// Reader loop: detects disconnects, discards payloads.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.remove(s)
				return
			}
		}
	}()
}

// Close stops the delivery pump and disconnects all subscribers.
func (b *Broadcaster) Close(ctx context.Context) error {
	close(b.done)

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	for s := range b.subscribers {
		s.conn.Close()
	}
	b.subscribers = make(map[*subscriber]struct{})
	b.mu.Unlock()
	return nil
}

type notificationMessage struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
}

type recordingStateMessage struct {
	Type          string `json:"type"`
	Recording     bool   `json:"recording"`
	ActiveStreams int    `json:"active_streams"`
}

func encodeEvent(event domain.Event) interface{} {
	switch e := event.(type) {
	case domain.Notification:
		msg := e.Body
		if e.Title != "" {
			msg = fmt.Sprintf("%s: %s", e.Title, e.Body)
		}
		return notificationMessage{
			Type:             "notification",
			Message:          msg,
			NotificationType: string(e.Severity),
		}
	case domain.RecordingState:
		return recordingStateMessage{
			Type:          "recording_state",
			Recording:     e.Recording,
			ActiveStreams: e.ActiveStreams,
		}
	default:
		return map[string]string{"type": event.Kind()}
	}
}
