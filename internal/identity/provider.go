// Package identity talks to the OAuth2/OIDC identity provider and guards the
// kiosk's privileged actions. Interactive sign-in uses the device
// authorization flow: the kiosk shows a user code, the person authenticates
// on their own phone or workstation, and the kiosk polls for the token.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ThxTiger/roomkiosk/internal/config"
	"github.com/ThxTiger/roomkiosk/internal/models"
)

// ErrCancelled means the person closed or declined the interactive prompt.
// It is a first-class outcome, not an error condition to surface.
var ErrCancelled = errors.New("authentication cancelled")

// ErrInteractiveRequired means no cached credential can satisfy a silent
// acquisition and the caller must fall back to the interactive flow
var ErrInteractiveRequired = errors.New("interactive authentication required")

// Token is a verified credential: the bearer token plus the authenticated
// account it belongs to
type Token struct {
	AccessToken string
	Account     models.Account
	ExpiresAt   time.Time
}

// Provider acquires tokens from the identity provider
type Provider interface {
	// AcquireInteractive runs a full interactive authentication. With
	// forceLogin the provider must re-prompt even when a session exists;
	// a cached credential is never acceptable for verifying identity at
	// the kiosk.
	AcquireInteractive(ctx context.Context, forceLogin bool) (*Token, error)
	// AcquireSilent returns a cached, unexpired token or ErrInteractiveRequired
	AcquireSilent(ctx context.Context) (*Token, error)
}

// PromptFunc presents the device-flow user code on the kiosk display
type PromptFunc func(userCode, verificationURI string)

// DeviceProvider implements Provider against a standard device-authorization
// endpoint pair
type DeviceProvider struct {
	cfg        config.IdentityConfig
	httpClient *http.Client
	prompt     PromptFunc

	mu     sync.Mutex
	cached *Token
}

// NewDeviceProvider creates a provider for the configured identity endpoints.
// prompt may be nil when no display is attached (tests).
func NewDeviceProvider(cfg config.IdentityConfig, prompt PromptFunc) *DeviceProvider {
	return &DeviceProvider{
		cfg:        cfg,
		prompt:     prompt,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// AcquireSilent returns the cached token when it is still valid
func (p *DeviceProvider) AcquireSilent(ctx context.Context) (*Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Now().Before(p.cached.ExpiresAt) {
		token := *p.cached
		return &token, nil
	}
	return nil, ErrInteractiveRequired
}

// AcquireInteractive runs the device authorization flow end to end
func (p *DeviceProvider) AcquireInteractive(ctx context.Context, forceLogin bool) (*Token, error) {
	if !p.cfg.IsValid() {
		return nil, errors.New("identity provider not configured")
	}

	code, err := p.requestDeviceCode(ctx, forceLogin)
	if err != nil {
		return nil, err
	}

	if p.prompt != nil {
		p.prompt(code.UserCode, code.VerificationURI)
	}

	token, err := p.pollForToken(ctx, code)
	if err != nil {
		return nil, err
	}

	account, err := p.fetchAccount(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	result := &Token{
		AccessToken: token.AccessToken,
		Account:     account,
		ExpiresAt:   time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second),
	}

	p.mu.Lock()
	p.cached = result
	p.mu.Unlock()

	copied := *result
	return &copied, nil
}

// Forget drops the cached credential, e.g. on sign-out
func (p *DeviceProvider) Forget() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *DeviceProvider) requestDeviceCode(ctx context.Context, forceLogin bool) (*deviceCodeResponse, error) {
	data := url.Values{}
	data.Set("client_id", p.cfg.ClientID)
	data.Set("scope", strings.Join(p.cfg.Scopes, " "))
	if forceLogin {
		// Equivalent of prompt=login: the authorization server must not
		// reuse an existing browser session for this verification.
		data.Set("prompt", "login")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.DeviceAuthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read device code response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device code request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var code deviceCodeResponse
	if err := json.Unmarshal(body, &code); err != nil {
		return nil, fmt.Errorf("failed to parse device code response: %w", err)
	}
	if code.Interval <= 0 {
		code.Interval = 5
	}
	return &code, nil
}

// redeemStatus classifies a token-endpoint response that did not yield a token
type redeemStatus int

const (
	redeemOK redeemStatus = iota
	// redeemPending: the person has not approved the request yet
	redeemPending
	// redeemSlowDown: the server asks for a longer polling interval
	// (RFC 8628 section 3.5: add 5 seconds)
	redeemSlowDown
)

func (p *DeviceProvider) pollForToken(ctx context.Context, code *deviceCodeResponse) (*tokenResponse, error) {
	interval := time.Duration(code.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			// The kiosk cancel button cancels the request context; this
			// is the person backing out, not a failure.
			return nil, ErrCancelled
		case <-time.After(interval):
		}

		if time.Now().After(deadline) {
			return nil, ErrCancelled
		}

		token, status, err := p.redeemDeviceCode(ctx, code.DeviceCode)
		if err != nil {
			return nil, err
		}
		switch status {
		case redeemPending:
			continue
		case redeemSlowDown:
			interval += 5 * time.Second
			continue
		}
		return token, nil
	}
}

func (p *DeviceProvider) redeemDeviceCode(ctx context.Context, deviceCode string) (*tokenResponse, redeemStatus, error) {
	data := url.Values{}
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	data.Set("client_id", p.cfg.ClientID)
	data.Set("device_code", deviceCode)
	if p.cfg.ClientSecret != "" {
		data.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, redeemOK, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, redeemOK, fmt.Errorf("failed to make token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, redeemOK, fmt.Errorf("failed to read token response: %w", err)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, redeemOK, fmt.Errorf("failed to parse token response: %w", err)
	}

	switch token.Error {
	case "":
		if resp.StatusCode != http.StatusOK {
			return nil, redeemOK, fmt.Errorf("token request failed (status %d): %s", resp.StatusCode, string(body))
		}
		return &token, redeemOK, nil
	case "authorization_pending":
		return nil, redeemPending, nil
	case "slow_down":
		return nil, redeemSlowDown, nil
	case "access_denied", "expired_token":
		return nil, redeemOK, ErrCancelled
	default:
		return nil, redeemOK, fmt.Errorf("token request failed: %s", token.Error)
	}
}

func (p *DeviceProvider) fetchAccount(ctx context.Context, accessToken string) (models.Account, error) {
	if p.cfg.UserInfoURL == "" {
		return models.Account{}, errors.New("userinfo endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Account{}, fmt.Errorf("userinfo request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var info struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return models.Account{}, fmt.Errorf("failed to parse userinfo response: %w", err)
	}

	email := info.Email
	if email == "" {
		email = info.PreferredUsername
	}
	if email == "" {
		return models.Account{}, errors.New("userinfo response carries no usable identity")
	}
	return models.Account{Name: info.Name, Email: email}, nil
}
