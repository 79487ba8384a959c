package youtube

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"
)

// AuthConfig carries the OAuth client settings for the YouTube account.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is registered with the OAuth client but nothing listens
	// on it; the user pastes the resulting redirect back to us.
	RedirectURL     string
	PendingStateTTL time.Duration
	RefreshMargin   time.Duration
	// Endpoint defaults to Google's OAuth endpoint when left zero.
	Endpoint oauth2.Endpoint
}

// AuthManager drives the three-legged OAuth flow with manual redirect
// completion and keeps the process-wide credential fresh.
type AuthManager struct {
	oauth       *oauth2.Config
	store       ports.CredentialStore
	broadcaster ports.Broadcaster

	pendingTTL    time.Duration
	refreshMargin time.Duration

	mu            sync.Mutex
	pendingState  string
	pendingExpiry time.Time
	token         *oauth2.Token

	logger *zap.SugaredLogger
}

// NewAuthManager builds the manager and restores any persisted
// credential so authorization survives restarts.
func NewAuthManager(
	ctx context.Context,
	cfg AuthConfig,
	store ports.CredentialStore,
	broadcaster ports.Broadcaster,
	logger *zap.SugaredLogger,
) (*AuthManager, error) {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}

	m := &AuthManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{yt.YoutubeUploadScope},
			Endpoint:     endpoint,
		},
		store:         store,
		broadcaster:   broadcaster,
		pendingTTL:    cfg.PendingStateTTL,
		refreshMargin: cfg.RefreshMargin,
		logger:        logger,
	}

	cred, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored credential: %w", err)
	}
	if cred != nil {
		m.token = tokenFromCredential(cred)
		logger.Infow("restored stored credential", "expires_at", cred.ExpiresAt)
	}
	return m, nil
}

// BeginAuthorization starts (or restarts) the flow and returns the URL
// the user must open in a browser. A prior pending attempt is
// superseded.
func (m *AuthManager) BeginAuthorization() (string, error) {
	if m.oauth.ClientID == "" || m.oauth.ClientSecret == "" {
		return "", fmt.Errorf("oauth client credentials not configured: %w", domain.ErrUnauthorized)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	state := hex.EncodeToString(buf)

	m.mu.Lock()
	m.pendingState = state
	m.pendingExpiry = time.Now().Add(m.pendingTTL)
	m.mu.Unlock()

	// Offline access plus forced consent so a refresh token is issued
	// even when the account approved this client before.
	authURL := m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))

	m.logger.Infow("authorization started", "state_ttl", m.pendingTTL)
	return authURL, nil
}

// CompleteAuthorization consumes the redirect URL the user pasted back,
// verifies the state token and exchanges the code for a credential.
func (m *AuthManager) CompleteAuthorization(ctx context.Context, redirectURL string) error {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRedirect, err)
	}
	query := parsed.Query()
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		return domain.ErrInvalidRedirect
	}

	m.mu.Lock()
	valid := m.pendingState != "" && state == m.pendingState && time.Now().Before(m.pendingExpiry)
	if valid {
		m.pendingState = ""
	}
	m.mu.Unlock()
	if !valid {
		return domain.ErrStateMismatch
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		m.notify("Authorization failed", fmt.Sprintf("code exchange rejected: %v", err), domain.SeverityError)
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	if err := m.persist(ctx, token); err != nil {
		return err
	}

	m.logger.Infow("authorization completed", "expires_at", token.Expiry)
	m.notify("YouTube connected", "uploads are now authorized", domain.SeveritySuccess)
	return nil
}

// EnsureValidToken returns a usable access token, refreshing it when it
// is within the safety margin of expiry.
func (m *AuthManager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == nil {
		return "", domain.ErrUnauthorized
	}
	if token.AccessToken != "" && time.Until(token.Expiry) > m.refreshMargin {
		return token.AccessToken, nil
	}
	if token.RefreshToken == "" {
		m.invalidate(ctx)
		return "", fmt.Errorf("no refresh token: %w", domain.ErrUnauthorized)
	}

	refreshed, err := m.oauth.TokenSource(ctx, token).Token()
	if err != nil {
		// A rejected refresh means the grant is gone; the whole flow has
		// to be run again.
		m.invalidate(ctx)
		return "", fmt.Errorf("refresh token: %w: %v", domain.ErrUnauthorized, err)
	}
	if err := m.persist(ctx, refreshed); err != nil {
		return "", err
	}

	m.logger.Infow("access token refreshed", "expires_at", refreshed.Expiry)
	return refreshed.AccessToken, nil
}

// State reports where the process-wide credential stands.
func (m *AuthManager) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil {
		return domain.AuthAuthorized
	}
	if m.pendingState != "" && time.Now().Before(m.pendingExpiry) {
		return domain.AuthPendingRedirect
	}
	return domain.AuthUnauthorized
}

// invalidate drops the credential everywhere so State reports
// Unauthorized and a restart cannot restore the dead grant.
func (m *AuthManager) invalidate(ctx context.Context) {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Errorw("failed to clear stored credential", "error", err)
	}

	m.logger.Warnw("credential invalidated, re-authorization required")
	m.notify("YouTube disconnected", "authorization expired, connect the account again", domain.SeverityWarning)
}

func (m *AuthManager) persist(ctx context.Context, token *oauth2.Token) error {
	// A refresh response may omit the refresh token; keep the old one.
	m.mu.Lock()
	if token.RefreshToken == "" && m.token != nil {
		token.RefreshToken = m.token.RefreshToken
	}
	m.token = token
	m.mu.Unlock()

	if err := m.store.Save(ctx, credentialFromToken(token)); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

func (m *AuthManager) notify(title, body string, severity domain.Severity) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Publish(domain.Notification{Title: title, Body: body, Severity: severity})
}

func tokenFromCredential(cred *domain.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
}

func credentialFromToken(token *oauth2.Token) *domain.Credential {
	return &domain.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}
