package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	spotifyapi "github.com/justestif/go-spotify-estaciones/internal/spotify"
	seasonsync "github.com/justestif/go-spotify-estaciones/internal/sync"
)

const oauthStateCookie = "oauth_state"

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth       *spotifyauth.Authenticator
	sessions   SessionManager
	templates  *Templates
	logger     *zap.Logger
	metrics    *seasonsync.Metrics
	syncConfig seasonsync.Config
	apiOpts    []spotify.ClientOption
	remoteOpts []spotifyapi.Option

	mu      sync.Mutex
	running map[string]bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions SessionManager, templates *Templates, logger *zap.Logger) *Handlers {
	return &Handlers{
		auth:       auth,
		sessions:   sessions,
		templates:  templates,
		logger:     logger,
		syncConfig: seasonsync.DefaultConfig(),
		running:    make(map[string]bool),
	}
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)

	data := HomePageData{
		PageData:      h.pageData(r, session),
		Authenticated: session != nil,
		Prefix:        h.syncConfig.NamePrefix,
		DryRun:        h.syncConfig.DryRun,
	}

	h.render(w, http.StatusOK, "home", data)
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		h.logger.Warn("Token exchange failed", zap.Error(err))
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	client := h.newAPI(r.Context(), token)
	user, err := client.CurrentUser(r.Context())
	if err != nil {
		h.logger.Warn("Fetching current user failed", zap.Error(err))
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(r.Context(), token, string(user.ID), user.DisplayName)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.logger.Info("User logged in", zap.String("user_id", string(user.ID)))
	h.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Sync sorts the session user's saved tracks into seasonal playlists (POST /sync).
// The form field dry_run turns the run into a preview.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		http.Error(w, "Log in with Spotify first", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	if !h.acquire(session.ID) {
		http.Error(w, "A sync is already running for this session", http.StatusConflict)
		return
	}
	defer h.release(session.ID)

	cfg := h.syncConfig
	if dryRun, ok := parseCheckbox(r.PostFormValue("dry_run")); ok {
		cfg.DryRun = dryRun
	}

	api := h.newAPI(r.Context(), session.Token)
	svc := seasonsync.New(
		spotifyapi.New(api, h.remoteOpts...),
		seasonsync.WithConfig(cfg),
		seasonsync.WithLogger(h.logger.With(zap.String("user_id", session.UserID))),
		seasonsync.WithMetrics(h.metrics),
	)

	result, err := svc.Run(r.Context())

	// oauth2 may have refreshed the token during the run
	if token, tokenErr := api.Token(); tokenErr == nil {
		h.sessions.UpdateToken(r.Context(), session.ID, token)
	}

	data := SyncPageData{
		PageData: h.pageData(r, session),
		Result:   result,
	}
	status := http.StatusOK

	if err != nil {
		h.logger.Error("Sync failed", zap.String("user_id", session.UserID), zap.Error(err))
		data.Flash = &FlashMessage{Type: "error", Message: "Sync failed: " + err.Error()}
		status = http.StatusBadGateway
	} else {
		data.Summary = seasonsync.FormatSummary(result)
		if result.DryRun {
			data.Flash = &FlashMessage{Type: "info", Message: "Dry run: nothing was changed in Spotify."}
		} else {
			data.Flash = &FlashMessage{Type: "success", Message: "Your seasonal playlists are up to date."}
		}
	}

	if r.Header.Get("HX-Request") == "true" {
		h.renderPartial(w, status, "sync_result", data)
		return
	}
	h.render(w, status, "sync", data)
}

// Healthz reports liveness (GET /healthz).
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handlers) pageData(r *http.Request, session *Session) PageData {
	data := PageData{
		Title:       "Estaciones",
		CurrentPath: r.URL.Path,
	}
	if session != nil {
		data.User = &UserData{
			ID:   session.UserID,
			Name: session.UserName,
		}
	}
	return data
}

func (h *Handlers) render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("Rendering template failed", zap.String("page", page), zap.Error(err))
	}
}

func (h *Handlers) renderPartial(w http.ResponseWriter, status int, partial string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.RenderPartial(w, partial, data); err != nil {
		h.logger.Error("Rendering partial failed", zap.String("partial", partial), zap.Error(err))
	}
}

func (h *Handlers) newAPI(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(h.auth.Client(ctx, token), h.apiOpts...)
}

// acquire marks a sync as running for the session. It reports false if one already is.
func (h *Handlers) acquire(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running[sessionID] {
		return false
	}
	h.running[sessionID] = true
	return true
}

func (h *Handlers) release(sessionID string) {
	h.mu.Lock()
	delete(h.running, sessionID)
	h.mu.Unlock()
}

// parseCheckbox accepts HTML checkbox values ("on") as well as booleans.
// ok is false when the field was not sent.
func parseCheckbox(value string) (checked, ok bool) {
	if value == "" {
		return false, false
	}
	if value == "on" {
		return true, true
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
