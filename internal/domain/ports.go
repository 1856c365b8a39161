package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnauthorized marks an upstream 401. Callers holding a refresh
// token may refresh once and retry.
var ErrUnauthorized = errors.New("unauthorized")

// StoredKey is a provider token row bound to an active state token.
type StoredKey struct {
	Access  string
	Refresh string
	UserID  int64
	State   string
	Version int64
}

// TokenStore persiste usuarios, claves activas y tokens por proveedor.
type TokenStore interface {
	InsertActiveKey(ctx context.Context, state string) error
	InsertTwitchUser(ctx context.Context, id int64) error
	InsertStreamlabsUser(ctx context.Context, id int64) error
	// Upserts key rows by user id and bump the stored version.
	UpsertTwitchKey(ctx context.Context, key StoredKey) error
	UpsertStreamlabsKey(ctx context.Context, key StoredKey) error
	// Lookups return (nil, nil) when no row matches.
	TwitchKeyByState(ctx context.Context, state string) (*StoredKey, error)
	StreamlabsKeyByState(ctx context.Context, state string) (*StoredKey, error)
}

// TwitchAuth covers the Twitch OAuth flow. ExchangeCode only trades
// the code for credentials; callers validate the pair through
// RefreshOrValidate before trusting it.
type TwitchAuth interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (access, refresh string, err error)
	RefreshOrValidate(ctx context.Context, access, refresh string) (*TwitchToken, error)
}

type StreamlabsAuth interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (access, refresh string, err error)
	RefreshOrValidate(ctx context.Context, access, refresh string) (*StreamlabsToken, error)
}

// RewardsAPI son las llamadas Helix que disparan los triggers del cliente.
type RewardsAPI interface {
	ManageableRewards(ctx context.Context, token *TwitchToken) ([]CustomReward, error)
	CreateReward(ctx context.Context, token *TwitchToken, reward CustomReward) error
	UpdateReward(ctx context.Context, token *TwitchToken, rewardID string, patch RewardPatch) error
	DeleteReward(ctx context.Context, token *TwitchToken, rewardID string) error
	SetRedemptionStatus(ctx context.Context, token *TwitchToken, rewardID, redemptionID, status string) error
}

// TwitchFeed is a live EventSub session. Events delivers translated
// notifications until the session ends; after the channel closes Err
// reports why (nil for a clean end). Disconnect may be called from any
// goroutine, more than once.
type TwitchFeed interface {
	Events() <-chan EventSubNotification
	Err() error
	Disconnect()
}

// StreamlabsFeed is a live socket.io session. Each channel element is
// the argument list of one incoming "event" emit.
type StreamlabsFeed interface {
	Events() <-chan []json.RawMessage
	Err() error
	Disconnect()
}

// Connectors dial one upstream session per client entry. Construction
// never fails; the session dials lazily and reports trouble through
// its feed.
type TwitchConnector interface {
	Connect(ctx context.Context, token *TwitchToken) TwitchFeed
}

type StreamlabsConnector interface {
	Connect(ctx context.Context, token *StreamlabsToken) StreamlabsFeed
}
