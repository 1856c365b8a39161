package relay

import (
	"fmt"
	"strconv"
	"sync"

	"stageLink/internal/app/protocol"
	"stageLink/internal/domain"
)

// ClientContext es el estado mutable de un WebSocket: state token y
// tokens de proveedor. Los callbacks OAuth lo mutan desde otro
// goroutine, de ahí el mutex y los getters que copian.
type ClientContext struct {
	remoteAddr string

	mu         sync.Mutex
	stateToken string
	twitch     *domain.TwitchToken
	streamlabs *domain.StreamlabsToken
}

func NewClientContext(remoteAddr string) *ClientContext {
	return &ClientContext{remoteAddr: remoteAddr}
}

func (c *ClientContext) RemoteAddr() string {
	return c.remoteAddr
}

func (c *ClientContext) StateToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateToken
}

func (c *ClientContext) SetStateToken(token string) {
	c.mu.Lock()
	c.stateToken = token
	c.mu.Unlock()
}

func (c *ClientContext) Twitch() *domain.TwitchToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.twitch == nil {
		return nil
	}
	token := *c.twitch
	return &token
}

func (c *ClientContext) SetTwitch(token *domain.TwitchToken) {
	c.mu.Lock()
	c.twitch = token
	c.mu.Unlock()
}

func (c *ClientContext) Streamlabs() *domain.StreamlabsToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamlabs == nil {
		return nil
	}
	token := *c.streamlabs
	return &token
}

func (c *ClientContext) SetStreamlabs(token *domain.StreamlabsToken) {
	c.mu.Lock()
	c.streamlabs = token
	c.mu.Unlock()
}

// ConnectMessage builds the ConnectResponse describing the context's
// current tokens. Twitch ids travel as numbers, Streamlabs ids as
// strings; that asymmetry is part of the wire format.
func ConnectMessage(cctx *ClientContext) (protocol.ConnectResponse, error) {
	resp := protocol.NewConnectResponse()

	if token := cctx.Twitch(); token != nil {
		id, err := strconv.ParseInt(token.UserID, 10, 64)
		if err != nil {
			return resp, fmt.Errorf("invalid twitch user id %q: %w", token.UserID, err)
		}
		resp.HasTwitch = true
		resp.TwitchID = &id
		resp.TwitchName = &token.Login
	}

	if token := cctx.Streamlabs(); token != nil {
		id := strconv.FormatInt(token.UserID, 10)
		resp.HasStreamlabs = true
		resp.StreamlabsID = &id
		resp.StreamlabsName = &token.Login
	}

	return resp, nil
}
