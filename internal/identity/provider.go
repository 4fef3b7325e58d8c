package identity

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

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/observability"
)

// expiryMargin is subtracted from the token lifetime so a token is
// never handed out moments before the platform stops accepting it.
const expiryMargin = 5 * time.Minute

// Credentials are the service principal used for the client-credentials
// grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Audience identifies one token consumer: the authority that mints the
// token and the resource or scopes it is minted for. Each audience gets
// its own Provider; caches are never shared between audiences.
type Audience struct {
	Name      string
	Authority string
	Tenant    string
	Resource  string
	Scopes    []string
}

// Token is a minted access token with its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Provider mints and caches bearer tokens for a single audience. A
// cached token is reused until it is within the expiry margin; the
// exchange itself is never retried here.
type Provider struct {
	creds    Credentials
	audience Audience
	http     *http.Client
	log      *zap.Logger
	margin   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cached *Token
}

func NewProvider(creds Credentials, aud Audience, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		creds:    creds,
		audience: aud,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
		margin:   expiryMargin,
		now:      time.Now,
	}
}

// Token returns a valid bearer token, exchanging credentials with the
// authority when the cached one is missing or close to expiry.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.now().Add(p.margin).Before(p.cached.ExpiresAt) {
		return p.cached.Value, nil
	}

	tok, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}
	p.cached = tok
	observability.TokenRefreshTotal.WithLabelValues(p.audience.Name).Inc()
	p.log.Debug("access token refreshed",
		zap.String("audience", p.audience.Name),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok.Value, nil
}

func (p *Provider) exchange(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	if p.audience.Resource != "" {
		form.Set("resource", p.audience.Resource)
	} else {
		form.Set("scope", strings.Join(p.audience.Scopes, " "))
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/token",
		strings.TrimRight(p.audience.Authority, "/"), p.audience.Tenant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rsp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange for %s: %w", p.audience.Name, err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(rsp.Body, 4<<10))
		return nil, core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("token exchange for audience %s failed with status %d", p.audience.Name, rsp.StatusCode))
	}

	// expires_in arrives as a number or a quoted number depending on
	// the authority version, so decode through json.Number.
	var body struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(rsp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, core.NewAppError(core.ErrConfiguration,
			fmt.Sprintf("token exchange for audience %s returned no access_token", p.audience.Name))
	}
	secs, err := body.ExpiresIn.Int64()
	if err != nil {
		return nil, fmt.Errorf("parse expires_in %q: %w", body.ExpiresIn, err)
	}

	return &Token{
		Value:     body.AccessToken,
		ExpiresAt: p.now().Add(time.Duration(secs) * time.Second),
	}, nil
}
