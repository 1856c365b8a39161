package twitchinfra

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nicklaw5/helix/v2"

	"stageLink/internal/domain"
)

// OAuth implementa el flujo de autorización de Twitch sobre Helix.
type OAuth struct {
	client *helix.Client
	scopes []string
}

// scopes is the space-separated scope list the app requests; it must
// match what the callback later receives.
func NewOAuth(clientID, clientSecret, redirectURL, scopes string) (*OAuth, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}

	return &OAuth{
		client: client,
		scopes: strings.Fields(scopes),
	}, nil
}

func (o *OAuth) AuthorizeURL(state string) string {
	return o.client.GetAuthorizationURL(&helix.AuthorizationURLParams{
		ResponseType: "code",
		Scopes:       o.scopes,
		State:        state,
	})
}

// ExchangeCode canjea el code del callback por un par de credenciales.
func (o *OAuth) ExchangeCode(_ context.Context, code string) (access, refresh string, err error) {
	resp, err := o.client.RequestUserAccessToken(code)
	if err != nil {
		return "", "", fmt.Errorf("helix: RequestUserAccessToken: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("helix: RequestUserAccessToken failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}

	return resp.Data.AccessToken, resp.Data.RefreshToken, nil
}

// RefreshOrValidate trusts a stored token only after /validate accepts
// it; otherwise it refreshes and validates the replacement.
func (o *OAuth) RefreshOrValidate(ctx context.Context, access, refresh string) (*domain.TwitchToken, error) {
	token, err := o.validate(ctx, access, refresh)
	if err == nil {
		return token, nil
	}

	resp, err := o.client.RefreshUserAccessToken(refresh)
	if err != nil {
		return nil, fmt.Errorf("helix: RefreshUserAccessToken: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix: RefreshUserAccessToken failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}

	newRefresh := resp.Data.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}

	return o.validate(ctx, resp.Data.AccessToken, newRefresh)
}

func (o *OAuth) validate(_ context.Context, access, refresh string) (*domain.TwitchToken, error) {
	ok, resp, err := o.client.ValidateToken(access)
	if err != nil {
		return nil, fmt.Errorf("helix: ValidateToken: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("helix: ValidateToken failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}

	return &domain.TwitchToken{
		Access:  access,
		Refresh: refresh,
		UserID:  resp.Data.UserID,
		Login:   resp.Data.Login,
	}, nil
}

var _ domain.TwitchAuth = (*OAuth)(nil)
