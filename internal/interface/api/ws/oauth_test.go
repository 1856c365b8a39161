package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageLink/internal/domain"
	"stageLink/internal/usecase/relay"
)

const testScopes = "channel:read:redemptions user:read:whispers"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ----- stubs -----

type stubStore struct {
	mu  sync.Mutex
	ops []string

	twitchKeys map[string]domain.StoredKey
	slKeys     map[string]domain.StoredKey

	upsertTwitchErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		twitchKeys: make(map[string]domain.StoredKey),
		slKeys:     make(map[string]domain.StoredKey),
	}
}

func (s *stubStore) record(op string) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *stubStore) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *stubStore) InsertActiveKey(_ context.Context, state string) error {
	s.record("active-key:" + state)
	return nil
}

func (s *stubStore) InsertTwitchUser(_ context.Context, id int64) error {
	s.record(fmt.Sprintf("twitch-user:%d", id))
	return nil
}

func (s *stubStore) InsertStreamlabsUser(_ context.Context, id int64) error {
	s.record(fmt.Sprintf("streamlabs-user:%d", id))
	return nil
}

func (s *stubStore) UpsertTwitchKey(_ context.Context, key domain.StoredKey) error {
	if s.upsertTwitchErr != nil {
		return s.upsertTwitchErr
	}
	s.record("twitch-key:" + key.State)
	s.mu.Lock()
	s.twitchKeys[key.State] = key
	s.mu.Unlock()
	return nil
}

func (s *stubStore) UpsertStreamlabsKey(_ context.Context, key domain.StoredKey) error {
	s.record("streamlabs-key:" + key.State)
	s.mu.Lock()
	s.slKeys[key.State] = key
	s.mu.Unlock()
	return nil
}

func (s *stubStore) TwitchKeyByState(context.Context, string) (*domain.StoredKey, error) {
	return nil, nil
}

func (s *stubStore) StreamlabsKeyByState(context.Context, string) (*domain.StoredKey, error) {
	return nil, nil
}

type stubTwitchAuth struct {
	token       *domain.TwitchToken
	exchangeErr error
	validateErr error
}

func (a *stubTwitchAuth) AuthorizeURL(state string) string {
	return "https://id.twitch.example/oauth2/authorize?state=" + state
}

func (a *stubTwitchAuth) ExchangeCode(_ context.Context, code string) (string, string, error) {
	if a.exchangeErr != nil {
		return "", "", a.exchangeErr
	}
	return "code-access", "code-refresh", nil
}

func (a *stubTwitchAuth) RefreshOrValidate(context.Context, string, string) (*domain.TwitchToken, error) {
	if a.validateErr != nil {
		return nil, a.validateErr
	}
	return a.token, nil
}

type stubStreamlabsAuth struct {
	token       *domain.StreamlabsToken
	exchangeErr error
	validateErr error
}

func (a *stubStreamlabsAuth) AuthorizeURL(state string) string {
	return "https://streamlabs.example/authorize?state=" + state
}

func (a *stubStreamlabsAuth) ExchangeCode(_ context.Context, code string) (string, string, error) {
	if a.exchangeErr != nil {
		return "", "", a.exchangeErr
	}
	return "code-access", "code-refresh", nil
}

func (a *stubStreamlabsAuth) RefreshOrValidate(context.Context, string, string) (*domain.StreamlabsToken, error) {
	if a.validateErr != nil {
		return nil, a.validateErr
	}
	return a.token, nil
}

type nopTwitchConnector struct{}

func (nopTwitchConnector) Connect(context.Context, *domain.TwitchToken) domain.TwitchFeed {
	return nil
}

type nopStreamlabsConnector struct{}

func (nopStreamlabsConnector) Connect(context.Context, *domain.StreamlabsToken) domain.StreamlabsFeed {
	return nil
}

type nopRewards struct{}

func (nopRewards) ManageableRewards(context.Context, *domain.TwitchToken) ([]domain.CustomReward, error) {
	return nil, nil
}
func (nopRewards) CreateReward(context.Context, *domain.TwitchToken, domain.CustomReward) error {
	return nil
}
func (nopRewards) UpdateReward(context.Context, *domain.TwitchToken, string, domain.RewardPatch) error {
	return nil
}
func (nopRewards) DeleteReward(context.Context, *domain.TwitchToken, string) error {
	return nil
}
func (nopRewards) SetRedemptionStatus(context.Context, *domain.TwitchToken, string, string, string) error {
	return nil
}

var _ domain.TokenStore = (*stubStore)(nil)
var _ domain.TwitchAuth = (*stubTwitchAuth)(nil)
var _ domain.StreamlabsAuth = (*stubStreamlabsAuth)(nil)
var _ domain.TwitchConnector = nopTwitchConnector{}
var _ domain.StreamlabsConnector = nopStreamlabsConnector{}
var _ domain.RewardsAPI = nopRewards{}

// ----- harness -----

type wsHarness struct {
	store  *stubStore
	twitch *stubTwitchAuth
	sl     *stubStreamlabsAuth
	rel    *relay.Relay
	srv    *Server
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()

	log := discardLogger()
	h := &wsHarness{
		store: newStubStore(),
		twitch: &stubTwitchAuth{token: &domain.TwitchToken{
			Access: "fresh-access", Refresh: "fresh-refresh", UserID: "42", Login: "streamer",
		}},
		sl: &stubStreamlabsAuth{token: &domain.StreamlabsToken{
			Access: "fresh-access", Refresh: "fresh-refresh", UserID: 7, Login: "slstreamer", SocketToken: "sock",
		}},
	}

	registry := relay.NewRegistry(nopTwitchConnector{}, nopStreamlabsConnector{}, log)
	triggers := relay.NewTriggers(nopRewards{}, h.twitch, log)
	h.rel = relay.NewRelay(registry, h.store, h.twitch, h.sl, triggers, relay.NewLimiters(), "", log)
	h.srv = NewServer(Config{Addr: "127.0.0.1:0", TwitchScopes: testScopes}, h.rel, h.store, h.twitch, h.sl, log)
	return h
}

// joinWaitingClient registra un contexto vivo bajo el state, como si un
// cliente hubiera pedido el código y estuviera esperando el callback.
func (h *wsHarness) joinWaitingClient(state string) (*relay.ClientContext, chan []byte) {
	cctx := relay.NewClientContext("test-client")
	cctx.SetStateToken(state)
	mailbox := make(chan []byte, 4)
	h.rel.Registry().Join(context.Background(), state, cctx, mailbox)
	return cctx, mailbox
}

func getCallback(handler func(http.ResponseWriter, *http.Request), target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// ----- auth redirects -----

func TestTwitchAuthRedirectsToAuthorization(t *testing.T) {
	h := newWSHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/twitch/auth/tok-1", nil)
	req.SetPathValue("state", "tok-1")
	rec := httptest.NewRecorder()
	h.srv.handleTwitchAuth(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://id.twitch.example/oauth2/authorize?state=tok-1", rec.Header().Get("Location"))
}

func TestStreamlabsAuthRedirectsToAuthorization(t *testing.T) {
	h := newWSHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/streamlabs/auth/tok-2", nil)
	req.SetPathValue("state", "tok-2")
	rec := httptest.NewRecorder()
	h.srv.handleStreamlabsAuth(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://streamlabs.example/authorize?state=tok-2", rec.Header().Get("Location"))
}

// ----- twitch callback -----

func TestTwitchCallbackRejectsProviderErrors(t *testing.T) {
	h := newWSHarness(t)

	rec := getCallback(h.srv.handleTwitchCallback,
		"/twitch/callback?error=access_denied&error_description=The+user+denied+access")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Twitch returned an error: access_denied: The user denied access",
		strings.TrimSpace(rec.Body.String()))

	rec = getCallback(h.srv.handleTwitchCallback, "/twitch/callback?error=access_denied")
	assert.Equal(t, "Twitch returned an error: access_denied: No description provided",
		strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackRequiresParameters(t *testing.T) {
	h := newWSHarness(t)

	cases := []struct {
		name   string
		target string
		want   string
	}{
		{"no code", "/twitch/callback?state=s&scope=" + url.QueryEscape(testScopes), "Missing code parameter"},
		{"no state", "/twitch/callback?code=c&scope=" + url.QueryEscape(testScopes), "Missing state parameter"},
		{"no scope", "/twitch/callback?code=c&state=s", "Missing scope parameter"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := getCallback(h.srv.handleTwitchCallback, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestTwitchCallbackRejectsScopeMismatch(t *testing.T) {
	h := newWSHarness(t)

	rec := getCallback(h.srv.handleTwitchCallback, "/twitch/callback?code=c&state=s&scope=chat:read")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t,
		fmt.Sprintf("Invalid scopes: expected '%s', got 'chat:read'", testScopes),
		strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackReportsExchangeFailures(t *testing.T) {
	h := newWSHarness(t)
	h.twitch.exchangeErr = errors.New("boom")

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Twitch Token Error: boom", strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackReportsValidationFailures(t *testing.T) {
	h := newWSHarness(t)
	h.twitch.validateErr = errors.New("boom")

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Twitch Validation Error: boom", strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackRejectsNonNumericUserIDs(t *testing.T) {
	h := newWSHarness(t)
	h.twitch.token.UserID = "not-a-number"

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Invalid user ID from Twitch", strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackReportsUpsertFailures(t *testing.T) {
	h := newWSHarness(t)
	h.store.upsertTwitchErr = errors.New("disk full")

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database error: disk full", strings.TrimSpace(rec.Body.String()))
}

func TestTwitchCallbackPersistsInOrderAndGreets(t *testing.T) {
	h := newWSHarness(t)

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Twitch authentication successful! You can close this tab.", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	assert.Equal(t, []string{"twitch-user:42", "active-key:tok-1", "twitch-key:tok-1"}, h.store.operations())

	key := h.store.twitchKeys["tok-1"]
	assert.Equal(t, "fresh-access", key.Access)
	assert.Equal(t, "fresh-refresh", key.Refresh)
	assert.Equal(t, int64(42), key.UserID)
}

func TestTwitchCallbackNotifiesTheWaitingClient(t *testing.T) {
	h := newWSHarness(t)
	cctx, mailbox := h.joinWaitingClient("tok-1")

	rec := getCallback(h.srv.handleTwitchCallback, twitchCallbackURL("tok-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	token := cctx.Twitch()
	require.NotNil(t, token)
	assert.Equal(t, "streamer", token.Login)

	select {
	case data := <-mailbox:
		var resp struct {
			Type      string `json:"type"`
			HasTwitch bool   `json:"has_twitch"`
			TwitchID  *int64 `json:"twitch_id"`
		}
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.Equal(t, "connectResponse", resp.Type)
		assert.True(t, resp.HasTwitch)
		require.NotNil(t, resp.TwitchID)
		assert.Equal(t, int64(42), *resp.TwitchID)
	default:
		t.Fatal("no connect message broadcast to the waiting client")
	}
}

func twitchCallbackURL(state string) string {
	return "/twitch/callback?code=code-abc&state=" + state + "&scope=" + url.QueryEscape(testScopes)
}

// ----- streamlabs callback -----

func TestStreamlabsCallbackPersistsAndGreets(t *testing.T) {
	h := newWSHarness(t)

	// sin parámetro scope: Streamlabs no lo devuelve
	rec := getCallback(h.srv.handleStreamlabsCallback, "/streamlabs/callback?code=code-abc&state=tok-9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Streamlabs authentication successful! You can close this tab.", rec.Body.String())

	assert.Equal(t, []string{"streamlabs-user:7", "active-key:tok-9", "streamlabs-key:tok-9"}, h.store.operations())

	key := h.store.slKeys["tok-9"]
	assert.Equal(t, int64(7), key.UserID)
	assert.Equal(t, "fresh-access", key.Access)
}

func TestStreamlabsCallbackRejectsProviderErrors(t *testing.T) {
	h := newWSHarness(t)

	rec := getCallback(h.srv.handleStreamlabsCallback, "/streamlabs/callback?error=denied")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Streamlabs returned an error: denied: No description provided",
		strings.TrimSpace(rec.Body.String()))
}

func TestStreamlabsCallbackReportsExchangeFailures(t *testing.T) {
	h := newWSHarness(t)
	h.sl.exchangeErr = errors.New("boom")

	rec := getCallback(h.srv.handleStreamlabsCallback, "/streamlabs/callback?code=c&state=s")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Streamlabs Authorization Code Error: boom", strings.TrimSpace(rec.Body.String()))
}

func TestStreamlabsCallbackReportsValidationFailures(t *testing.T) {
	h := newWSHarness(t)
	h.sl.validateErr = errors.New("boom")

	rec := getCallback(h.srv.handleStreamlabsCallback, "/streamlabs/callback?code=c&state=s")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Streamlabs Validation Error: boom", strings.TrimSpace(rec.Body.String()))
}

func TestStreamlabsCallbackNotifiesTheWaitingClient(t *testing.T) {
	h := newWSHarness(t)
	cctx, mailbox := h.joinWaitingClient("tok-9")

	rec := getCallback(h.srv.handleStreamlabsCallback, "/streamlabs/callback?code=code-abc&state=tok-9")
	require.Equal(t, http.StatusOK, rec.Code)

	token := cctx.Streamlabs()
	require.NotNil(t, token)
	assert.Equal(t, "slstreamer", token.Login)

	select {
	case data := <-mailbox:
		var resp struct {
			Type          string  `json:"type"`
			HasStreamlabs bool    `json:"has_streamlabs"`
			StreamlabsID  *string `json:"streamlabs_id"`
		}
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.Equal(t, "connectResponse", resp.Type)
		assert.True(t, resp.HasStreamlabs)
		require.NotNil(t, resp.StreamlabsID)
		assert.Equal(t, "7", *resp.StreamlabsID)
	default:
		t.Fatal("no connect message broadcast to the waiting client")
	}
}
