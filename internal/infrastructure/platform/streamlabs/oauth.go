// Package streamlabsinfra habla con la API v2.0 de Streamlabs: OAuth,
// validación de usuario y el socket de eventos en tiempo real.
package streamlabsinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stageLink/internal/domain"
)

const apiBaseURL = "https://streamlabs.com/api/v2.0"

// OAuth implements the Streamlabs authorization flow by hand; there is
// no API client to lean on. Redirects are never followed: a 3xx from
// /user means the token is not valid.
type OAuth struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       string
	base         string
	http         *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURL, scopes string) *OAuth {
	return &OAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		scopes:       scopes,
		base:         apiBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (o *OAuth) AuthorizeURL(state string) string {
	scopes := strings.ReplaceAll(o.scopes, " ", "%20")
	return fmt.Sprintf("%s/authorize?response_type=code&client_id=%s&redirect_uri=%s&scope=%s&state=%s",
		o.base, o.clientID, o.redirectURL, scopes, state)
}

// ExchangeCode canjea el code por un par de credenciales.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (access, refresh string, err error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", o.clientID)
	form.Set("client_secret", o.clientSecret)
	form.Set("redirect_uri", o.redirectURL)
	form.Set("code", code)

	return o.requestToken(ctx, form)
}

// RefreshOrValidate trusts a stored token only after /user accepts it;
// any validation error falls back to a refresh plus re-validation.
func (o *OAuth) RefreshOrValidate(ctx context.Context, access, refresh string) (*domain.StreamlabsToken, error) {
	token, err := o.validate(ctx, access, refresh)
	if err == nil {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", o.clientID)
	form.Set("client_secret", o.clientSecret)
	form.Set("redirect_uri", o.redirectURL)
	form.Set("refresh_token", refresh)

	newAccess, newRefresh, err := o.requestToken(ctx, form)
	if err != nil {
		return nil, err
	}
	if newRefresh == "" {
		newRefresh = refresh
	}
	return o.validate(ctx, newAccess, newRefresh)
}

func (o *OAuth) requestToken(ctx context.Context, form url.Values) (access, refresh string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("streamlabs: new token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("streamlabs: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("streamlabs: token request failed (%d)", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("streamlabs: decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", "", fmt.Errorf("streamlabs: token response without access_token")
	}

	return body.AccessToken, body.RefreshToken, nil
}

func (o *OAuth) validate(ctx context.Context, access, refresh string) (*domain.StreamlabsToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("streamlabs: new user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("streamlabs: user request: %w", err)
	}
	defer resp.Body.Close()

	// Streamlabs redirige al login cuando el token no sirve.
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
		return nil, fmt.Errorf("streamlabs: token validation redirected to %s", resp.Header.Get("Location"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("streamlabs: user request failed (%d)", resp.StatusCode)
	}

	var body struct {
		Streamlabs *struct {
			ID          *int64  `json:"id"`
			DisplayName *string `json:"display_name"`
		} `json:"streamlabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("streamlabs: decode user response: %w", err)
	}
	if body.Streamlabs == nil {
		return nil, fmt.Errorf("streamlabs: no streamlabs field in validation response")
	}
	if body.Streamlabs.ID == nil {
		return nil, fmt.Errorf("streamlabs: no id field in validation response")
	}
	if body.Streamlabs.DisplayName == nil {
		return nil, fmt.Errorf("streamlabs: no display_name field in validation response")
	}

	socketToken, err := o.socketToken(ctx, access)
	if err != nil {
		return nil, err
	}

	return &domain.StreamlabsToken{
		Access:      access,
		Refresh:     refresh,
		UserID:      *body.Streamlabs.ID,
		Login:       *body.Streamlabs.DisplayName,
		SocketToken: socketToken,
	}, nil
}

func (o *OAuth) socketToken(ctx context.Context, access string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/socket/token", nil)
	if err != nil {
		return "", fmt.Errorf("streamlabs: new socket token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("streamlabs: socket token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("streamlabs: socket token request failed (%d)", resp.StatusCode)
	}

	var body struct {
		SocketToken *string `json:"socket_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("streamlabs: decode socket token response: %w", err)
	}
	if body.SocketToken == nil {
		return "", fmt.Errorf("streamlabs: no socket_token field in socket token response")
	}

	return *body.SocketToken, nil
}

var _ domain.StreamlabsAuth = (*OAuth)(nil)
