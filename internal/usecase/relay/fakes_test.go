package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"stageLink/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ----- upstream feeds -----

type fakeTwitchFeed struct {
	events      chan domain.EventSubNotification
	err         error
	disconnects atomic.Int32
}

func newFakeTwitchFeed() *fakeTwitchFeed {
	return &fakeTwitchFeed{events: make(chan domain.EventSubNotification)}
}

func (f *fakeTwitchFeed) Events() <-chan domain.EventSubNotification { return f.events }
func (f *fakeTwitchFeed) Err() error                                 { return f.err }
func (f *fakeTwitchFeed) Disconnect()                                { f.disconnects.Add(1) }

type fakeTwitchConnector struct {
	dials atomic.Int32
	feed  *fakeTwitchFeed
}

func (c *fakeTwitchConnector) Connect(context.Context, *domain.TwitchToken) domain.TwitchFeed {
	c.dials.Add(1)
	return c.feed
}

type fakeStreamlabsFeed struct {
	events      chan []json.RawMessage
	err         error
	disconnects atomic.Int32
}

func newFakeStreamlabsFeed() *fakeStreamlabsFeed {
	return &fakeStreamlabsFeed{events: make(chan []json.RawMessage)}
}

func (f *fakeStreamlabsFeed) Events() <-chan []json.RawMessage { return f.events }
func (f *fakeStreamlabsFeed) Err() error                       { return f.err }
func (f *fakeStreamlabsFeed) Disconnect()                      { f.disconnects.Add(1) }

type fakeStreamlabsConnector struct {
	dials atomic.Int32
	feed  *fakeStreamlabsFeed
}

func (c *fakeStreamlabsConnector) Connect(context.Context, *domain.StreamlabsToken) domain.StreamlabsFeed {
	c.dials.Add(1)
	return c.feed
}

// ----- token store -----

type fakeStore struct {
	mu         sync.Mutex
	activeKeys map[string]bool
	twitchKeys map[string]*domain.StoredKey
	slKeys     map[string]*domain.StoredKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		activeKeys: make(map[string]bool),
		twitchKeys: make(map[string]*domain.StoredKey),
		slKeys:     make(map[string]*domain.StoredKey),
	}
}

func (s *fakeStore) InsertActiveKey(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeKeys[state] = true
	return nil
}

func (s *fakeStore) hasActiveKey(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKeys[state]
}

func (s *fakeStore) InsertTwitchUser(context.Context, int64) error     { return nil }
func (s *fakeStore) InsertStreamlabsUser(context.Context, int64) error { return nil }

func (s *fakeStore) UpsertTwitchKey(_ context.Context, key domain.StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.twitchKeys[key.State] = &key
	return nil
}

func (s *fakeStore) UpsertStreamlabsKey(_ context.Context, key domain.StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slKeys[key.State] = &key
	return nil
}

func (s *fakeStore) TwitchKeyByState(_ context.Context, state string) (*domain.StoredKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.twitchKeys[state], nil
}

func (s *fakeStore) StreamlabsKeyByState(_ context.Context, state string) (*domain.StoredKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slKeys[state], nil
}

// ----- provider auth -----

type fakeTwitchAuth struct {
	mu          sync.Mutex
	token       *domain.TwitchToken
	err         error
	validations int
}

func (a *fakeTwitchAuth) AuthorizeURL(state string) string {
	return "https://twitch.example/auth?state=" + state
}

func (a *fakeTwitchAuth) ExchangeCode(context.Context, string) (string, string, error) {
	return "exchanged-access", "exchanged-refresh", nil
}

func (a *fakeTwitchAuth) RefreshOrValidate(context.Context, string, string) (*domain.TwitchToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validations++
	if a.err != nil {
		return nil, a.err
	}
	return a.token, nil
}

func (a *fakeTwitchAuth) validationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validations
}

type fakeStreamlabsAuth struct {
	mu    sync.Mutex
	token *domain.StreamlabsToken
	err   error
}

func (a *fakeStreamlabsAuth) AuthorizeURL(state string) string {
	return "https://streamlabs.example/auth?state=" + state
}

func (a *fakeStreamlabsAuth) ExchangeCode(context.Context, string) (string, string, error) {
	return "exchanged-access", "exchanged-refresh", nil
}

func (a *fakeStreamlabsAuth) RefreshOrValidate(context.Context, string, string) (*domain.StreamlabsToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.token, nil
}

// ----- rewards API -----

type updateCall struct {
	rewardID string
	patch    domain.RewardPatch
}

type statusCall struct {
	rewardID     string
	redemptionID string
	status       string
}

type fakeRewards struct {
	mu        sync.Mutex
	rewards   []domain.CustomReward
	manageErr error
	createErr error
	updateErr error
	deleteErr error
	statusErr error

	created  []domain.CustomReward
	updated  []updateCall
	deleted  []string
	statuses []statusCall
}

func (f *fakeRewards) ManageableRewards(context.Context, *domain.TwitchToken) ([]domain.CustomReward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manageErr != nil {
		return nil, f.manageErr
	}
	return f.rewards, nil
}

func (f *fakeRewards) CreateReward(_ context.Context, _ *domain.TwitchToken, reward domain.CustomReward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, reward)
	return nil
}

func (f *fakeRewards) UpdateReward(_ context.Context, _ *domain.TwitchToken, rewardID string, patch domain.RewardPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, updateCall{rewardID: rewardID, patch: patch})
	return nil
}

func (f *fakeRewards) DeleteReward(_ context.Context, _ *domain.TwitchToken, rewardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, rewardID)
	return nil
}

func (f *fakeRewards) SetRedemptionStatus(_ context.Context, _ *domain.TwitchToken, rewardID, redemptionID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, statusCall{rewardID: rewardID, redemptionID: redemptionID, status: status})
	return nil
}

func (f *fakeRewards) setStatusErr(err error) {
	f.mu.Lock()
	f.statusErr = err
	f.mu.Unlock()
}

var _ domain.TokenStore = (*fakeStore)(nil)
var _ domain.TwitchAuth = (*fakeTwitchAuth)(nil)
var _ domain.StreamlabsAuth = (*fakeStreamlabsAuth)(nil)
var _ domain.RewardsAPI = (*fakeRewards)(nil)
var _ domain.TwitchFeed = (*fakeTwitchFeed)(nil)
var _ domain.StreamlabsFeed = (*fakeStreamlabsFeed)(nil)
var _ domain.TwitchConnector = (*fakeTwitchConnector)(nil)
var _ domain.StreamlabsConnector = (*fakeStreamlabsConnector)(nil)
