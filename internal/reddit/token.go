package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modtrack/modtrack/internal/cache"
	"github.com/modtrack/modtrack/pkg/config"
	"github.com/modtrack/modtrack/pkg/logging"
)

// expiryMargin is how close to expiry a cached token may get before we
// refresh proactively.
const expiryMargin = 10 * time.Second

const tokenCacheKey = "modtrack:access_token"

// TokenSource obtains and caches a bearer token for the Reddit API via
// the refresh grant. A mutex serializes refreshes so concurrent comment
// workers never stampede the token endpoint. The optional Redis cache
// lets consecutive cron runs reuse a still-valid token.
type TokenSource struct {
	httpc        *http.Client
	authBase     string
	clientID     string
	clientSecret string
	refreshToken string
	userAgent    string
	store        *cache.Cache
	logger       *zap.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source. store may be nil.
func NewTokenSource(cfg *config.RedditConfig, store *cache.Cache) *TokenSource {
	return &TokenSource{
		httpc:        &http.Client{Timeout: cfg.Timeout},
		authBase:     strings.TrimRight(cfg.AuthBase, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		userAgent:    cfg.UserAgent,
		store:        store,
		logger:       logging.WithComponent("token-source"),
	}
}

type cachedToken struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// Token returns a valid bearer token, refreshing it first when less than
// expiryMargin remains. Returns *AuthError when the provider rejects the
// refresh credential.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Until(ts.expiry) > expiryMargin {
		return ts.token, nil
	}

	if tok := ts.fromStore(ctx); tok != "" {
		return tok, nil
	}

	if err := ts.refresh(ctx); err != nil {
		return "", err
	}
	return ts.token, nil
}

// Invalidate drops the cached token so the next Token call performs a
// refresh. The resilient fetcher calls this after an authorization
// failure on a request that carried a previously valid token.
func (ts *TokenSource) Invalidate(ctx context.Context) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiry = time.Time{}
	if err := ts.store.Delete(ctx, tokenCacheKey); err != nil && err != cache.ErrCacheDisabled {
		ts.logger.Warn("Failed to drop cached token", zap.Error(err))
	}
}

func (ts *TokenSource) fromStore(ctx context.Context) string {
	raw, err := ts.store.Get(ctx, tokenCacheKey)
	if err != nil {
		if err != cache.ErrCacheDisabled {
			ts.logger.Debug("Token cache miss", zap.Error(err))
		}
		return ""
	}
	var ct cachedToken
	if err := json.Unmarshal([]byte(raw), &ct); err != nil {
		return ""
	}
	expiry := time.Unix(ct.Expiry, 0)
	if ct.Token == "" || time.Until(expiry) <= expiryMargin {
		return ""
	}
	ts.token = ct.Token
	ts.expiry = expiry
	return ts.token
}

func (ts *TokenSource) refresh(ctx context.Context) error {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {ts.refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		ts.authBase+"/api/v1/access_token", strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(ts.clientID, ts.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", ts.userAgent)

	resp, err := ts.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &AuthError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(body))}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return &AuthError{Status: resp.StatusCode, Msg: "empty access_token in response"}
	}

	ts.token = tokenResp.AccessToken
	ts.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	ts.logger.Debug("Refreshed access token", zap.Time("expiry", ts.expiry))

	ct, _ := json.Marshal(cachedToken{Token: ts.token, Expiry: ts.expiry.Unix()})
	ttl := time.Until(ts.expiry) - expiryMargin
	if ttl > 0 {
		if err := ts.store.Set(ctx, tokenCacheKey, string(ct), ttl); err != nil && err != cache.ErrCacheDisabled {
			ts.logger.Warn("Failed to cache token", zap.Error(err))
		}
	}

	return nil
}
