package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/modtrack/modtrack/pkg/config"
)

// AuthorizeURL builds the user-facing authorization URL for the one-time
// bootstrap that yields a refresh token.
func AuthorizeURL(cfg *config.RedditConfig, state, redirectURI, scopes string) string {
	q := url.Values{
		"client_id":     {cfg.ClientID},
		"response_type": {"code"},
		"state":         {state},
		"redirect_uri":  {redirectURI},
		"duration":      {"permanent"},
		"scope":         {scopes},
	}
	return strings.TrimRight(cfg.AuthBase, "/") + "/api/v1/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for a refresh token.
func ExchangeCode(ctx context.Context, cfg *config.RedditConfig, code, redirectURI string) (string, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(cfg.AuthBase, "/")+"/api/v1/access_token",
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("build exchange request: %w", err)
	}
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", cfg.UserAgent)

	httpc := &http.Client{Timeout: cfg.Timeout}
	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(body))}
	}

	var tokenResp struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("decode exchange response: %w", err)
	}
	if tokenResp.RefreshToken == "" {
		return "", fmt.Errorf("no refresh_token in response")
	}
	return tokenResp.RefreshToken, nil
}
