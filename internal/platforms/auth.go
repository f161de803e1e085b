package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/sirupsen/logrus"
)

// Identity is what a successful credential exchange yields
type Identity struct {
	Username string
	UserID   string
}

// Authenticator exchanges user supplied credentials for a platform identity
type Authenticator interface {
	Authenticate(ctx context.Context, platformID string, creds models.Credentials) (Identity, error)
	Revoke(ctx context.Context, platformID string, identity Identity) error
}

// StaticAuthenticator trusts the supplied username. Used for demo mode where
// no OAuth backend is running.
type StaticAuthenticator struct{}

// Ensure StaticAuthenticator implements Authenticator
var _ Authenticator = StaticAuthenticator{}

func (StaticAuthenticator) Authenticate(ctx context.Context, platformID string, creds models.Credentials) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	username := strings.TrimSpace(creds.Username)
	if username == "" {
		return Identity{}, fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	return Identity{Username: username}, nil
}

func (StaticAuthenticator) Revoke(ctx context.Context, platformID string, identity Identity) error {
	return nil
}

// BackendAuthenticator verifies a connection against the OAuth backend, which
// holds the actual tokens after the platform's OAuth callback.
type BackendAuthenticator struct {
	baseURL   string
	sessionID string
	client    *resty.Client
}

// Ensure BackendAuthenticator implements Authenticator
var _ Authenticator = (*BackendAuthenticator)(nil)

type backendTokenResponse struct {
	Platform         string `json:"platform"`
	AccessToken      string `json:"access_token"`
	PlatformUserID   string `json:"platform_user_id"`
	PlatformUsername string `json:"platform_username"`
}

// NewBackendAuthenticator creates an authenticator talking to baseURL
func NewBackendAuthenticator(baseURL, sessionID string) *BackendAuthenticator {
	return &BackendAuthenticator{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		client: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("User-Agent", "PostProber-Dashboard/1.0"),
	}
}

func (b *BackendAuthenticator) Authenticate(ctx context.Context, platformID string, creds models.Credentials) (Identity, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: "session_id", Value: b.sessionID}).
		Get(fmt.Sprintf("%s/auth/%s/token", b.baseURL, platformID))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrCredentialExchange, err)
	}

	if resp.StatusCode() != http.StatusOK {
		logrus.Warnf("Token lookup for %s returned status %d: %s", platformID, resp.StatusCode(), string(resp.Body()))
		return Identity{}, fmt.Errorf("%w: backend returned status %d", ErrCredentialExchange, resp.StatusCode())
	}

	var token backendTokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return Identity{}, fmt.Errorf("%w: failed to parse token response: %v", ErrCredentialExchange, err)
	}

	username := token.PlatformUsername
	if username == "" {
		// Some platforms do not expose a handle; fall back to what the user typed
		username = strings.TrimSpace(creds.Username)
	}
	if username == "" {
		return Identity{}, fmt.Errorf("%w: backend returned no username for %s", ErrCredentialExchange, platformID)
	}

	return Identity{Username: username, UserID: token.PlatformUserID}, nil
}

func (b *BackendAuthenticator) Revoke(ctx context.Context, platformID string, identity Identity) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: "session_id", Value: b.sessionID}).
		Post(fmt.Sprintf("%s/auth/%s/disconnect", b.baseURL, platformID))
	if err != nil {
		return fmt.Errorf("failed to revoke %s token: %w", platformID, err)
	}

	// 404 means the backend already forgot the token
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("revoke for %s returned status %d", platformID, resp.StatusCode())
	}

	return nil
}
