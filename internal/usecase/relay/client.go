package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stageLink/internal/app/protocol"
	"stageLink/internal/domain"
)

// Cada buzón de fanout aguanta esta cantidad de frames pendientes.
const fanoutBuffer = 32

// Relay drives one orchestrator loop per client WebSocket: downstream
// frames, the own fanout mailbox and both upstream feeds, in that
// order of preference.
type Relay struct {
	registry   *Registry
	store      domain.TokenStore
	twitchAuth domain.TwitchAuth
	slAuth     domain.StreamlabsAuth
	triggers   *Triggers
	limits     *Limiters
	version    string
	log        *slog.Logger
}

func NewRelay(
	registry *Registry,
	store domain.TokenStore,
	twitchAuth domain.TwitchAuth,
	slAuth domain.StreamlabsAuth,
	triggers *Triggers,
	limits *Limiters,
	clientVersion string,
	log *slog.Logger,
) *Relay {
	return &Relay{
		registry:   registry,
		store:      store,
		twitchAuth: twitchAuth,
		slAuth:     slAuth,
		triggers:   triggers,
		limits:     limits,
		version:    clientVersion,
		log:        log,
	}
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

type incomingFrame struct {
	messageType int
	data        []byte
	err         error
}

// HandleClient owns the socket until either side is done. It registers
// the connection under its state token as soon as one exists, then
// relays in both directions.
func (r *Relay) HandleClient(ctx context.Context, conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	cctx := NewClientContext(remoteAddr)
	mailbox := make(chan []byte, fanoutBuffer)
	frames := make(chan incomingFrame)
	done := make(chan struct{})
	defer close(done)

	go readPump(conn, frames, done)

	send := func(msg any) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		select {
		case mailbox <- data:
			return nil
		default:
			return fmt.Errorf("send queue full")
		}
	}

	// joined recuerda bajo qué token entró este socket al registro;
	// un connect posterior puede cambiar el token del contexto, pero
	// la membresía no se muda.
	joined := ""
	defer func() {
		if joined != "" {
			r.registry.Leave(joined, mailbox)
		}
	}()

	for {
		if state := cctx.StateToken(); state != "" && joined == "" {
			r.registry.Join(ctx, state, cctx, mailbox)
			joined = state
		}

		var twitchFeed domain.TwitchFeed
		var slFeed domain.StreamlabsFeed
		var twitchEvents <-chan domain.EventSubNotification
		var slEvents <-chan []json.RawMessage
		if joined != "" {
			twitchFeed, slFeed = r.registry.Feeds(joined)
			if twitchFeed != nil {
				twitchEvents = twitchFeed.Events()
			}
			if slFeed != nil {
				slEvents = slFeed.Events()
			}
		}

		// Un frame del cliente listo gana siempre; luego la cola de
		// salida; luego lo que llegue primero.
		select {
		case frame, ok := <-frames:
			if !r.clientTurn(ctx, conn, send, cctx, frame, ok) {
				return
			}
			continue
		default:
		}
		select {
		case data := <-mailbox:
			if !r.writeTurn(conn, data) {
				return
			}
			continue
		default:
		}

		select {
		case frame, ok := <-frames:
			if !r.clientTurn(ctx, conn, send, cctx, frame, ok) {
				return
			}
		case data := <-mailbox:
			if !r.writeTurn(conn, data) {
				return
			}
		case notification, ok := <-twitchEvents:
			if !r.twitchTurn(conn, send, joined, twitchFeed, notification, ok) {
				return
			}
		case payloads, ok := <-slEvents:
			if !r.streamlabsTurn(conn, send, joined, slFeed, payloads, ok) {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, frames chan<- incomingFrame, done <-chan struct{}) {
	defer close(frames)
	for {
		messageType, data, err := conn.ReadMessage()
		select {
		case frames <- incomingFrame{messageType: messageType, data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ----- loop turns -----

func (r *Relay) clientTurn(ctx context.Context, conn *websocket.Conn, send sendFunc, cctx *ClientContext, frame incomingFrame, ok bool) bool {
	if !ok {
		return false
	}
	if frame.err != nil {
		if websocket.IsCloseError(frame.err,
			websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			r.log.Info("relay: client closed", "remote", cctx.RemoteAddr())
		} else {
			r.log.Warn("relay: read error", "remote", cctx.RemoteAddr(), "error", frame.err)
		}
		return false
	}

	keepGoing, err := r.handleMessage(ctx, send, cctx, frame.messageType, frame.data)
	if err != nil {
		r.log.Error("relay: message handling failed", "remote", cctx.RemoteAddr(), "error", err)
		r.writeDirect(conn, protocol.NewError(-1, "server", err.Error()))
		return false
	}
	return keepGoing
}

func (r *Relay) writeTurn(conn *websocket.Conn, data []byte) bool {
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.log.Warn("relay: write failed", "error", err)
		return false
	}
	return true
}

func (r *Relay) twitchTurn(conn *websocket.Conn, send sendFunc, state string, feed domain.TwitchFeed, notification domain.EventSubNotification, ok bool) bool {
	if !ok {
		if err := feed.Err(); err != nil {
			r.log.Error("relay: twitch session failed", "error", err)
			r.writeDirect(conn, protocol.NewError(-1, "twitch", err.Error()))
		} else {
			r.log.Info("relay: twitch session ended", "state", state)
		}
		return false
	}

	messages, err := twitchMessages(notification)
	if err != nil {
		// un evento indescifrable no corta la conexión
		r.log.Error("relay: twitch event translation", "type", notification.Type, "error", err)
		_ = send(protocol.NewError(-1, "twitch", err.Error()))
		return true
	}

	for _, msg := range messages {
		if err := r.registry.Broadcast(state, msg); err != nil {
			r.log.Error("relay: twitch broadcast", "error", err)
			_ = send(protocol.NewError(-1, "twitch", err.Error()))
			break
		}
	}
	return true
}

func (r *Relay) streamlabsTurn(conn *websocket.Conn, send sendFunc, state string, feed domain.StreamlabsFeed, payloads []json.RawMessage, ok bool) bool {
	if !ok {
		if err := feed.Err(); err != nil {
			r.log.Error("relay: streamlabs session failed", "error", err)
			r.writeDirect(conn, protocol.NewError(-1, "streamlabs", err.Error()))
		} else {
			r.log.Info("relay: streamlabs session ended", "state", state)
		}
		return false
	}

	items := streamLabsItems(payloads)
	if len(items) == 0 {
		return true
	}
	if err := r.registry.Broadcast(state, protocol.NewStreamLabsEvent(items)); err != nil {
		r.log.Error("relay: streamlabs broadcast", "error", err)
		_ = send(protocol.NewError(-1, "streamlabs", err.Error()))
	}
	return true
}

// ----- client frames -----

// handleMessage despacha un frame del cliente. (false, nil) cierra la
// conexión en silencio; un error la cierra con un frame Error.
func (r *Relay) handleMessage(ctx context.Context, send sendFunc, cctx *ClientContext, messageType int, data []byte) (bool, error) {
	// Los textos de estos errores viajan al cliente en un frame Error.
	if messageType != websocket.TextMessage {
		return false, fmt.Errorf("Unexpected binary message")
	}

	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return false, fmt.Errorf("Failed to parse message: %w", err)
	}

	switch msg.Type {
	case protocol.TypeCodeRequest:
		return r.handleCodeRequest(ctx, send, cctx, msg.CodeRequest)
	case protocol.TypeConnect:
		if msg.ConnectRequest == nil {
			return false, fmt.Errorf("connect frame without payload")
		}
		return r.handleConnect(ctx, send, cctx, msg.ConnectRequest)
	case protocol.TypeTwitchTrigger:
		if msg.TwitchTrigger == nil {
			return false, fmt.Errorf("twitchTrigger frame without payload")
		}
		return r.handleTrigger(ctx, send, cctx, msg.TwitchTrigger)
	}

	return false, fmt.Errorf("unknown message type %q", msg.Type)
}

func (r *Relay) handleCodeRequest(ctx context.Context, send sendFunc, cctx *ClientContext, req *protocol.CodeRequest) (bool, error) {
	if err := r.limits.NewUser.Wait(ctx); err != nil {
		return false, fmt.Errorf("admission wait: %w", err)
	}

	stateToken := uuid.NewString()
	cctx.SetStateToken(stateToken)

	// La clave queda registrada desde la emisión; así el callback
	// OAuth la encuentra aunque el cliente nunca haga connect.
	if err := r.store.InsertActiveKey(ctx, stateToken); err != nil {
		return false, fmt.Errorf("Database error: %w", err)
	}

	if err := send(protocol.NewCodeResponse(stateToken)); err != nil {
		return false, err
	}
	r.log.Info("relay: issued state token", "state", stateToken, "remote", cctx.RemoteAddr())

	var clientVersion *string
	if req != nil {
		clientVersion = req.ClientVersion
	}
	if err := r.notifyVersion(send, clientVersion); err != nil {
		return false, err
	}

	return true, nil
}

func (r *Relay) handleConnect(ctx context.Context, send sendFunc, cctx *ClientContext, req *protocol.ConnectRequest) (bool, error) {
	cctx.SetStateToken(req.StateToken)

	if err := r.store.InsertActiveKey(ctx, req.StateToken); err != nil {
		return false, fmt.Errorf("Database error: %w", err)
	}

	if sibling := r.registry.ContextFor(req.StateToken); sibling != nil {
		// Una entrada viva ya pasó por todo esto: copia sus tokens.
		r.log.Info("relay: joining existing entry", "state", req.StateToken)
		cctx.SetTwitch(sibling.Twitch())
		cctx.SetStreamlabs(sibling.Streamlabs())
	} else {
		if err := r.hydrateTwitch(ctx, cctx, req.StateToken); err != nil {
			return false, err
		}
		if err := r.hydrateStreamlabs(ctx, cctx, req.StateToken); err != nil {
			return false, err
		}
	}

	resp, err := ConnectMessage(cctx)
	if err != nil {
		return false, err
	}
	if err := send(resp); err != nil {
		return false, err
	}

	if err := r.notifyVersion(send, req.ClientVersion); err != nil {
		return false, err
	}

	return true, nil
}

// hydrateTwitch loads and validates the stored Twitch token. Failure
// is fatal for the connect: the client must not believe it is linked.
func (r *Relay) hydrateTwitch(ctx context.Context, cctx *ClientContext, state string) error {
	key, err := r.store.TwitchKeyByState(ctx, state)
	if err != nil {
		return fmt.Errorf("Database error: %w", err)
	}
	if key == nil {
		r.log.Info("relay: no twitch user connected", "state", state)
		return nil
	}

	if err := r.limits.Twitch.Wait(ctx); err != nil {
		return fmt.Errorf("admission wait: %w", err)
	}

	token, err := r.twitchAuth.RefreshOrValidate(ctx, key.Access, key.Refresh)
	if err != nil {
		return fmt.Errorf("Twitch Validation Error: %w", err)
	}

	r.log.Info("relay: twitch user connected", "login", token.Login)
	cctx.SetTwitch(token)
	return nil
}

// hydrateStreamlabs es más indulgente: si el token almacenado no
// valida, la sesión sigue sin Streamlabs.
func (r *Relay) hydrateStreamlabs(ctx context.Context, cctx *ClientContext, state string) error {
	key, err := r.store.StreamlabsKeyByState(ctx, state)
	if err != nil {
		return fmt.Errorf("Database error: %w", err)
	}
	if key == nil {
		r.log.Info("relay: no streamlabs user connected", "state", state)
		return nil
	}

	if err := r.limits.Streamlabs.Wait(ctx); err != nil {
		return fmt.Errorf("admission wait: %w", err)
	}

	token, err := r.slAuth.RefreshOrValidate(ctx, key.Access, key.Refresh)
	if err != nil {
		r.log.Warn("relay: streamlabs validation failed", "state", state, "error", err)
		return nil
	}

	r.log.Info("relay: streamlabs user connected", "login", token.Login)
	cctx.SetStreamlabs(token)
	return nil
}

func (r *Relay) handleTrigger(ctx context.Context, send sendFunc, cctx *ClientContext, req *protocol.TwitchTriggerRequest) (bool, error) {
	if cctx.Twitch() == nil {
		return false, fmt.Errorf("Twitch not connected")
	}

	retry, err := r.triggers.Handle(ctx, cctx, req, send)
	if err != nil {
		return false, err
	}
	if retry {
		// el token acaba de refrescarse; un único reintento
		if _, err := r.triggers.Handle(ctx, cctx, req, send); err != nil {
			return false, err
		}
	}

	return true, nil
}

// notifyVersion warns clients running something other than the
// expected version. An empty configured version disables the check.
func (r *Relay) notifyVersion(send sendFunc, clientVersion *string) error {
	if r.version == "" {
		return nil
	}
	if clientVersion == nil {
		return send(protocol.NewNotify("Version Unknown",
			"Your client did not send a version. Please ensure you are using the latest version for the best experience."))
	}
	if *clientVersion != r.version {
		r.log.Info("relay: client version mismatch", "expected", r.version, "got", *clientVersion)
		return send(protocol.NewNotify("Version Mismatch",
			fmt.Sprintf("Your client version (%s) does not match the expected version (%s). Please update your client for the best experience.", *clientVersion, r.version)))
	}
	return nil
}

// writeDirect bypasses the mailbox so a fatal Error frame still
// reaches the peer before the close.
func (r *Relay) writeDirect(conn *websocket.Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
