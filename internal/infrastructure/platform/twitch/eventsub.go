package twitchinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/nicklaw5/helix/v2"

	"stageLink/internal/domain"
)

const eventSubURL = "wss://eventsub.wss.twitch.tv/ws"

// EventSubConnector abre una sesión EventSub por cada entrada activa.
type EventSubConnector struct {
	clientID string
	log      *slog.Logger
}

func NewEventSubConnector(clientID string, log *slog.Logger) *EventSubConnector {
	if log == nil {
		log = slog.Default()
	}
	return &EventSubConnector{clientID: clientID, log: log}
}

func (c *EventSubConnector) Connect(ctx context.Context, token *domain.TwitchToken) domain.TwitchFeed {
	s := &EventSubSession{
		token:    token,
		clientID: c.clientID,
		log:      c.log,
		url:      eventSubURL,
		events:   make(chan domain.EventSubNotification),
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// EventSubSession pumps one EventSub websocket. Transient drops (1006,
// reset without closing handshake) redial the current URL; a
// session_reconnect moves that URL first. Deliberate closes and
// revocations end the feed cleanly; anything else surfaces through Err.
type EventSubSession struct {
	token    *domain.TwitchToken
	clientID string
	log      *slog.Logger

	url       string
	apiURL    string
	sessionID string

	events chan domain.EventSubNotification
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

type eventSubEnvelope struct {
	Metadata struct {
		MessageType string `json:"message_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID           string  `json:"id"`
			ReconnectURL *string `json:"reconnect_url"`
		} `json:"session"`
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

func (s *EventSubSession) Events() <-chan domain.EventSubNotification {
	return s.events
}

func (s *EventSubSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *EventSubSession) Disconnect() {
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

func (s *EventSubSession) run(ctx context.Context) {
	defer close(s.events)

	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		if conn == nil {
			select {
			case <-s.done:
				return
			default:
			}

			dialed, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
			if err != nil {
				s.fail(fmt.Errorf("eventsub: dial %s: %w", s.url, err))
				return
			}
			conn = dialed
			s.setConn(dialed)
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			redial, failure := s.classify(err)
			if failure != nil {
				s.fail(failure)
				return
			}
			if !redial {
				return
			}
			conn.Close()
			conn = nil
			s.setConn(nil)
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var envelope eventSubEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.fail(fmt.Errorf("eventsub: parse message: %w", err))
			return
		}

		switch envelope.Metadata.MessageType {
		case "session_welcome", "session_reconnect":
			s.sessionID = envelope.Payload.Session.ID
			if u := envelope.Payload.Session.ReconnectURL; u != nil && *u != "" {
				s.url = *u
			}
			s.subscribeAll()
		case "notification":
			notification := domain.EventSubNotification{
				Type:  envelope.Payload.Subscription.Type,
				Event: envelope.Payload.Event,
			}
			select {
			case s.events <- notification:
			case <-s.done:
				return
			}
		case "revocation":
			s.log.Info("eventsub: subscription revoked", "user", s.token.Login)
			return
		case "session_keepalive":
			// nada que hacer
		default:
			s.log.Debug("eventsub: unhandled message", "message_type", envelope.Metadata.MessageType)
		}
	}
}

// classify decides what a read error means: redial, clean end, or a
// failure worth surfacing.
func (s *EventSubSession) classify(err error) (redial bool, failure error) {
	select {
	case <-s.done:
		return false, nil
	default:
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseAbnormalClosure {
			return true, nil
		}
		// Twitch cerró a propósito (timeout de keepalive, etc.)
		s.log.Info("eventsub: upstream closed", "code", closeErr.Code, "text", closeErr.Text)
		return false, nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true, nil
	}
	if errors.Is(err, net.ErrClosed) {
		return false, nil
	}
	return false, fmt.Errorf("eventsub: read: %w", err)
}

// subscribeAll registers the six subscriptions on the current session.
// Individual failures are logged and skipped; the session stays up with
// whatever subset succeeded.
func (s *EventSubSession) subscribeAll() {
	client, err := helix.NewClient(&helix.Options{
		ClientID:        s.clientID,
		UserAccessToken: s.token.Access,
		APIBaseURL:      s.apiURL,
	})
	if err != nil {
		s.log.Warn("eventsub: helix client", "error", err)
		return
	}

	broadcaster := helix.EventSubCondition{BroadcasterUserID: s.token.UserID}
	chat := helix.EventSubCondition{BroadcasterUserID: s.token.UserID, UserID: s.token.UserID}
	self := helix.EventSubCondition{UserID: s.token.UserID}

	subscriptions := []struct {
		kind      string
		condition helix.EventSubCondition
	}{
		{domain.EventBitsUse, broadcaster},
		{domain.EventRedemptionAdd, broadcaster},
		{domain.EventRedemptionUpdate, broadcaster},
		{domain.EventChatMessage, chat},
		{domain.EventChatNotification, chat},
		{domain.EventWhisper, self},
	}

	for _, sub := range subscriptions {
		resp, err := client.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:      sub.kind,
			Version:   "1",
			Condition: sub.condition,
			Transport: helix.EventSubTransport{Method: "websocket", SessionID: s.sessionID},
		})
		if err != nil {
			s.log.Warn("eventsub: subscribe", "type", sub.kind, "error", err)
			continue
		}
		if resp.StatusCode != http.StatusAccepted {
			s.log.Warn("eventsub: subscribe failed", "type", sub.kind,
				"status", resp.StatusCode, "message", resp.ErrorMessage)
		}
	}
}

func (s *EventSubSession) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *EventSubSession) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

var _ domain.TwitchFeed = (*EventSubSession)(nil)
var _ domain.TwitchConnector = (*EventSubConnector)(nil)
