package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-estaciones/internal/config"
)

const callbackTimeout = 2 * time.Minute

var (
	// ErrMissingCredentials is returned when the client ID or secret is not set.
	ErrMissingCredentials = config.ErrMissingCredentials

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// Authenticator handles Spotify OAuth2 authentication.
type Authenticator struct {
	auth        *spotifyauth.Authenticator
	cache       *TokenCache
	callbackURL *url.URL
	logger      *zap.Logger
	out         io.Writer
	apiOpts     []spotify.ClientOption
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithOutput sets where the login URL is printed. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(a *Authenticator) {
		a.out = w
	}
}

// WithClientOptions adds options to every Spotify client the Authenticator builds.
func WithClientOptions(opts ...spotify.ClientOption) Option {
	return func(a *Authenticator) {
		a.apiOpts = append(a.apiOpts, opts...)
	}
}

// NewOAuth builds the spotifyauth authenticator for cfg. It is shared by the
// CLI flow and the web server so both request the same scopes.
func NewOAuth(cfg config.SpotifyConfig) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(cfg.Scopes...),
	)
}

// New creates an Authenticator from cfg.
// Returns ErrMissingCredentials if the client ID or secret is empty.
func New(cfg config.SpotifyConfig, opts ...Option) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	callbackURL, err := url.Parse(cfg.RedirectURL)
	if err != nil || callbackURL.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q", cfg.RedirectURL)
	}

	cache, err := NewTokenCache(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("creating token cache: %w", err)
	}

	a := &Authenticator{
		auth:        NewOAuth(cfg),
		cache:       cache,
		callbackURL: callbackURL,
		logger:      zap.NewNop(),
		out:         os.Stderr,
		apiOpts:     []spotify.ClientOption{spotify.WithRetry(true)},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("auth")

	return a, nil
}

// Cache returns the token cache in use.
func (a *Authenticator) Cache() *TokenCache {
	return a.cache
}

// Authenticate returns an authenticated Spotify client.
// A cached token is used when it still works; otherwise the full OAuth flow runs.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	token, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if token != nil {
		// oauth2 refreshes the token on demand
		client := a.newClient(ctx, token)

		if _, err := client.CurrentUser(ctx); err == nil {
			a.Persist(client)
			return client, nil
		}

		a.logger.Info("Cached token invalid, starting new authentication",
			zap.String("path", a.cache.Path()))
	}

	return a.runOAuthFlow(ctx)
}

// Persist writes the client's current token back to the cache if it was
// refreshed since it was last saved.
func (a *Authenticator) Persist(client *spotify.Client) {
	token, err := client.Token()
	if err != nil {
		a.logger.Warn("Failed to read client token", zap.Error(err))
		return
	}

	cached, err := a.cache.Load()
	if err == nil && cached != nil && cached.AccessToken == token.AccessToken {
		return
	}

	if err := a.cache.Save(token); err != nil {
		a.logger.Warn("Failed to cache refreshed token", zap.Error(err))
		return
	}
	a.logger.Debug("Saved refreshed token", zap.String("path", a.cache.Path()))
}

func (a *Authenticator) newClient(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.auth.Client(ctx, token), a.apiOpts...)
}

// runOAuthFlow performs the full OAuth authorization code flow.
func (a *Authenticator) runOAuthFlow(ctx context.Context) (*spotify.Client, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	tokenCh := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(a.callbackPath(), func(w http.ResponseWriter, r *http.Request) {
		a.handleCallback(w, r, state, tokenCh, errCh)
	})

	server := &http.Server{
		Addr:              a.callbackURL.Host,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	fmt.Fprintln(a.out, "\nTo authenticate, open this URL in your browser:")
	fmt.Fprintln(a.out, a.auth.AuthURL(state))
	fmt.Fprintln(a.out, "\nWaiting for authentication...")

	var token *oauth2.Token
	select {
	case token = <-tokenCh:
	case err := <-errCh:
		_ = server.Shutdown(context.Background())
		return nil, err
	case <-time.After(callbackTimeout):
		_ = server.Shutdown(context.Background())
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := a.cache.Save(token); err != nil {
		// auth succeeded, the next run will just ask again
		a.logger.Warn("Failed to cache token", zap.Error(err))
	}

	return a.newClient(ctx, token), nil
}

func (a *Authenticator) callbackPath() string {
	if a.callbackURL.Path == "" {
		return "/"
	}
	return a.callbackURL.Path
}

// handleCallback processes the OAuth callback from Spotify.
func (a *Authenticator) handleCallback(w http.ResponseWriter, r *http.Request, expectedState string, tokenCh chan<- *oauth2.Token, errCh chan<- error) {
	if r.URL.Query().Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		sendErr(errCh, ErrStateMismatch)
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		sendErr(errCh, fmt.Errorf("spotify auth error: %s", errMsg))
		return
	}

	token, err := a.auth.Token(r.Context(), expectedState, r)
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		sendErr(errCh, fmt.Errorf("exchanging code for token: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful!</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

	tokenCh <- token
}

// sendErr never blocks; only the first callback error matters.
func sendErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	if err := a.cache.Delete(); err != nil {
		return err
	}
	a.logger.Info("Removed cached token", zap.String("path", a.cache.Path()))
	return nil
}
