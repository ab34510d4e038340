package flattrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"knite_oms/internal/event"
)

// Stream maintains the persistent push subscription and feeds parsed order
// updates into the engine inbox. It is a latency optimization only: during a
// reconnect gap the poll path remains the source of truth, so the fixed
// reconnect delay costs nothing in correctness.
type Stream struct {
	wsURL     string
	userID    string
	token     string
	reconnect time.Duration
	inbox     chan<- event.Event

	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout time.Duration
}

// NewStream creates a push stream worker. The token must come from an
// authenticated client.
func NewStream(wsURL, userID, token string, reconnect time.Duration, inbox chan<- event.Event) *Stream {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Stream{
		wsURL:       wsURL,
		userID:      userID,
		token:       token,
		reconnect:   reconnect,
		inbox:       inbox,
		ReadTimeout: 60 * time.Second,
	}
}

// Connect starts the connection loop with automatic resubscription.
func (s *Stream) Connect(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

// Disconnect terminates the worker and closes the subscription.
func (s *Stream) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
}

func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("flattrade stream panic recovered", slog.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("flattrade stream stopped")
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			slog.Warn("flattrade stream connection failed", slog.Any("error", err))
			s.notifyState(false)

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnect):
				continue
			}
		}

		s.notifyState(true)
		s.readLoop(ctx)
		s.notifyState(false)

		// Session handshake is re-run on every reconnect.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnect):
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := make(http.Header)
	header.Set("Cookie", "NWC_ID="+s.token)

	conn, _, err := dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.authenticate(); err != nil {
		s.closeConnection()
		return fmt.Errorf("stream auth failed: %w", err)
	}

	slog.Info("flattrade stream connected")
	return nil
}

// authenticate sends the session handshake frame.
func (s *Stream) authenticate() error {
	req := wsAuthRequest{
		T:         "c",
		UID:       s.userID,
		ActID:     s.userID,
		UserToken: s.token,
		Source:    "API",
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("flattrade stream read error", slog.Any("error", err))
			s.closeConnection()
			return
		}

		s.handleMessage(msg)
	}
}

// handleMessage parses one push frame. Order updates are mapped into the
// closed status vocabulary here and delivered to the inbox; everything else
// is consumed silently.
func (s *Stream) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("flattrade stream: unparseable frame", slog.Any("error", err))
		return
	}

	switch msg.T {
	case "om":
		status, ok := mapStatus(msg.Status)
		if !ok {
			return
		}
		filled, _ := strconv.ParseInt(msg.FilledQty, 10, 64)
		s.deliver(event.OrderUpdate{
			BaseEvent: event.BaseEvent{Ts: time.Now().UnixMicro()},
			VenueID:   msg.OrderNo,
			Status:    status,
			FilledQty: filled,
		})
	case "ck":
		slog.Info("flattrade stream session acknowledged")
	}
}

// deliver blocks if the inbox is full rather than drop an update. The inbox
// is sized for bursts and the loop drains it every tick, so a full inbox is
// a transient condition.
func (s *Stream) deliver(ev event.Event) {
	s.inbox <- ev
}

func (s *Stream) notifyState(connected bool) {
	s.deliver(event.StreamState{
		BaseEvent: event.BaseEvent{Ts: time.Now().UnixMicro()},
		Connected: connected,
	})
}

func (s *Stream) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Stream) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
