package twitchinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stageLink/internal/domain"
)

const helixBaseURL = "https://api.twitch.tv/helix"

const (
	rewardsPath     = "/channel_points/custom_rewards"
	redemptionsPath = "/channel_points/custom_rewards/redemptions"
)

// RewardsClient llama a los endpoints de channel points de Helix con el
// token del usuario de cada sesión. Un 401 se devuelve envuelto en
// domain.ErrUnauthorized para que el caller refresque y reintente.
type RewardsClient struct {
	clientID string
	base     string
	http     *http.Client
}

func NewRewardsClient(clientID string) *RewardsClient {
	return &RewardsClient{
		clientID: clientID,
		base:     helixBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// ManageableRewards lists the rewards this app is allowed to edit.
func (c *RewardsClient) ManageableRewards(ctx context.Context, token *domain.TwitchToken) ([]domain.CustomReward, error) {
	query := url.Values{}
	query.Set("broadcaster_id", token.UserID)
	query.Set("only_manageable_rewards", "true")

	var page rewardsPage
	if err := c.do(ctx, token, http.MethodGet, rewardsPath, query, nil, &page); err != nil {
		return nil, err
	}

	rewards := make([]domain.CustomReward, 0, len(page.Data))
	for _, resource := range page.Data {
		rewards = append(rewards, resource.toDomain())
	}
	return rewards, nil
}

func (c *RewardsClient) CreateReward(ctx context.Context, token *domain.TwitchToken, reward domain.CustomReward) error {
	query := url.Values{}
	query.Set("broadcaster_id", token.UserID)

	// Las peticiones llevan el cooldown plano; la respuesta lo anida.
	body := map[string]any{
		"title":                      reward.Title,
		"prompt":                     reward.Prompt,
		"cost":                       reward.Cost,
		"is_enabled":                 reward.IsEnabled,
		"is_global_cooldown_enabled": reward.IsGlobalCooldownEnabled,
		"global_cooldown_seconds":    reward.GlobalCooldownSeconds,
	}

	return c.do(ctx, token, http.MethodPost, rewardsPath, query, body, nil)
}

func (c *RewardsClient) UpdateReward(ctx context.Context, token *domain.TwitchToken, rewardID string, patch domain.RewardPatch) error {
	query := url.Values{}
	query.Set("broadcaster_id", token.UserID)
	query.Set("id", rewardID)

	return c.do(ctx, token, http.MethodPatch, rewardsPath, query, patch, nil)
}

func (c *RewardsClient) DeleteReward(ctx context.Context, token *domain.TwitchToken, rewardID string) error {
	query := url.Values{}
	query.Set("broadcaster_id", token.UserID)
	query.Set("id", rewardID)

	return c.do(ctx, token, http.MethodDelete, rewardsPath, query, nil, nil)
}

// SetRedemptionStatus marks a redemption FULFILLED or CANCELED.
func (c *RewardsClient) SetRedemptionStatus(ctx context.Context, token *domain.TwitchToken, rewardID, redemptionID, status string) error {
	query := url.Values{}
	query.Set("broadcaster_id", token.UserID)
	query.Set("reward_id", rewardID)
	query.Set("id", redemptionID)

	body := map[string]string{"status": status}

	return c.do(ctx, token, http.MethodPatch, redemptionsPath, query, body, nil)
}

func (c *RewardsClient) do(ctx context.Context, token *domain.TwitchToken, method, path string, query url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("helix: encode %s body: %w", path, err)
		}
		payload = bytes.NewReader(encoded)
	}

	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("helix: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Access)
	req.Header.Set("Client-Id", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("helix: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("helix: %s %s: %w", method, path, domain.ErrUnauthorized)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("helix: %s %s failed (%d: %s) %s",
			method, path, resp.StatusCode, apiErr.Error, apiErr.Message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("helix: decode %s response: %w", path, err)
		}
	}
	return nil
}

type rewardsPage struct {
	Data []customRewardResource `json:"data"`
}

type customRewardResource struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	Prompt                string `json:"prompt"`
	Cost                  int    `json:"cost"`
	IsEnabled             bool   `json:"is_enabled"`
	GlobalCooldownSetting struct {
		IsEnabled             bool `json:"is_enabled"`
		GlobalCooldownSeconds int  `json:"global_cooldown_seconds"`
	} `json:"global_cooldown_setting"`
}

func (r customRewardResource) toDomain() domain.CustomReward {
	return domain.CustomReward{
		ID:                      r.ID,
		Title:                   r.Title,
		Prompt:                  r.Prompt,
		Cost:                    r.Cost,
		IsEnabled:               r.IsEnabled,
		IsGlobalCooldownEnabled: r.GlobalCooldownSetting.IsEnabled,
		GlobalCooldownSeconds:   r.GlobalCooldownSetting.GlobalCooldownSeconds,
	}
}

var _ domain.RewardsAPI = (*RewardsClient)(nil)
