package streamlabsinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stageLink/internal/domain"
)

const socketBaseURL = "wss://sockets.streamlabs.com"

// SocketConnector abre la sesión socket.io de eventos de Streamlabs.
type SocketConnector struct {
	base string
	log  *slog.Logger
}

func NewSocketConnector(log *slog.Logger) *SocketConnector {
	if log == nil {
		log = slog.Default()
	}
	return &SocketConnector{base: socketBaseURL, log: log}
}

func (c *SocketConnector) Connect(ctx context.Context, token *domain.StreamlabsToken) domain.StreamlabsFeed {
	s := &SocketSession{
		url: c.base + "/socket.io/?EIO=4&transport=websocket&token=" +
			url.QueryEscape(token.SocketToken),
		log:    c.log,
		events: make(chan []json.RawMessage),
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// SocketSession speaks just enough Engine.IO/Socket.IO over a plain
// websocket: "0" open, "40" namespace join, "2"/"3" ping-pong and "42"
// emits. Each "event" emit is delivered as its raw argument list.
type SocketSession struct {
	url string
	log *slog.Logger

	events chan []json.RawMessage
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

func (s *SocketSession) Events() <-chan []json.RawMessage {
	return s.events
}

func (s *SocketSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SocketSession) Disconnect() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

func (s *SocketSession) run(ctx context.Context) {
	defer close(s.events)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.fail(fmt.Errorf("streamlabs: dial socket: %w", err))
		return
	}
	s.setConn(conn)
	defer conn.Close()

	if err := s.handshake(conn); err != nil {
		s.fail(err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if failure := s.classify(err); failure != nil {
				s.fail(failure)
			}
			return
		}
		if closed := s.handleFrame(conn, string(data)); closed {
			return
		}
	}
}

// handshake espera el open de Engine.IO y entra al namespace default.
func (s *SocketSession) handshake(conn *websocket.Conn) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("streamlabs: socket open: %w", err)
	}
	if len(data) == 0 || data[0] != '0' {
		return fmt.Errorf("streamlabs: unexpected engine.io packet %q", string(data))
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return fmt.Errorf("streamlabs: namespace join: %w", err)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("streamlabs: namespace ack: %w", err)
	}
	if !strings.HasPrefix(string(data), "40") {
		return fmt.Errorf("streamlabs: socket connection rejected: %s", string(data))
	}

	return nil
}

func (s *SocketSession) handleFrame(conn *websocket.Conn, frame string) (closed bool) {
	switch {
	case frame == "2":
		if err := conn.WriteMessage(websocket.TextMessage, []byte("3")); err != nil {
			s.fail(fmt.Errorf("streamlabs: pong: %w", err))
			return true
		}
	case strings.HasPrefix(frame, "42"):
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(frame[2:]), &args); err != nil || len(args) == 0 {
			s.log.Debug("streamlabs: malformed emit", "frame", frame)
			return false
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			s.log.Debug("streamlabs: emit without name", "frame", frame)
			return false
		}
		switch name {
		case "event":
			select {
			case s.events <- args[1:]:
			case <-s.done:
				return true
			}
		case "error":
			s.log.Error("streamlabs: socket error emit", "payload", frame[2:])
			return true
		default:
			// otros emits no nos interesan
		}
	case strings.HasPrefix(frame, "41"):
		// el servidor nos sacó del namespace
		return true
	}
	return false
}

func (s *SocketSession) classify(err error) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return fmt.Errorf("streamlabs: read socket: %w", err)
}

func (s *SocketSession) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *SocketSession) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

var _ domain.StreamlabsFeed = (*SocketSession)(nil)
var _ domain.StreamlabsConnector = (*SocketConnector)(nil)
