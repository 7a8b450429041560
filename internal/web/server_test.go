package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-estaciones/internal/config"
	seasonsync "github.com/justestif/go-spotify-estaciones/internal/sync"
	webfs "github.com/justestif/go-spotify-estaciones/web"
)

// fakeSpotify serves the handful of Web API endpoints a sync touches.
type fakeSpotify struct {
	t *testing.T

	mu        gosync.Mutex
	saved     []savedItem
	playlists []map[string]any
	added     map[string][]string
	failSaved bool
	posts     int
}

type savedItem struct {
	ID      string
	AddedAt string
}

func (f *fakeSpotify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/me":
		io.WriteString(w, `{"id":"user-1","display_name":"Test User"}`)

	case r.Method == http.MethodGet && r.URL.Path == "/me/tracks":
		if f.failSaved {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"status":403,"message":"forbidden"}}`)
			return
		}
		items := make([]map[string]any, 0, len(f.saved))
		for _, s := range f.saved {
			items = append(items, map[string]any{
				"added_at": s.AddedAt,
				"track":    map[string]any{"id": s.ID, "name": "Song " + s.ID, "artists": []any{map[string]any{"name": "Artist"}}},
			})
		}
		writeJSON(f.t, w, map[string]any{"items": items, "total": len(items), "limit": 50, "offset": 0})

	case r.Method == http.MethodGet && r.URL.Path == "/me/playlists":
		writeJSON(f.t, w, map[string]any{"items": f.playlists, "total": len(f.playlists), "limit": 50, "offset": 0})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/users/"):
		f.posts++
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decoding create body: %v", err)
		}
		id := fmt.Sprintf("pl-%d", len(f.playlists)+1)
		pl := map[string]any{"id": id, "name": body.Name, "owner": map[string]any{"id": "user-1"}}
		f.playlists = append(f.playlists, pl)
		w.WriteHeader(http.StatusCreated)
		writeJSON(f.t, w, pl)

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/playlists/"):
		f.posts++
		var body struct {
			URIs []string `json:"uris"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decoding add body: %v", err)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/playlists/"), "/tracks")
		f.added[id] = append(f.added[id], body.URIs...)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"snapshot_id":"snap"}`)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(t *testing.T, w io.Writer, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

type testEnv struct {
	server  *Server
	spotify *fakeSpotify
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := &fakeSpotify{
		t: t,
		saved: []savedItem{
			{ID: "a", AddedAt: "2023-02-15T10:00:00Z"},
			{ID: "b", AddedAt: "2023-04-10T10:00:00Z"},
		},
		added: make(map[string][]string),
	}
	api := httptest.NewServer(fake)
	t.Cleanup(api.Close)

	spotifyCfg := config.Default().Spotify
	spotifyCfg.ClientID = "client-id"
	spotifyCfg.ClientSecret = "client-secret"
	spotifyCfg.RequestsPerSecond = 0

	server, err := NewServer(ServerConfig{
		Addr:          "127.0.0.1:0",
		Spotify:       spotifyCfg,
		Sync:          seasonsync.DefaultConfig(),
		TemplatesFS:   webfs.Templates(),
		StaticFS:      webfs.Static(),
		Logger:        zaptest.NewLogger(t),
		ClientOptions: []spotify.ClientOption{spotify.WithBaseURL(api.URL + "/")},
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	return &testEnv{server: server, spotify: fake}
}

// login creates a session and returns its cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	token := &oauth2.Token{
		AccessToken: "access",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}
	session, err := e.server.sessions.Create(context.Background(), token, "user-1", "Test User")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func postSync(form url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestNewServer_MissingCredentials(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	if err != config.ErrMissingCredentials {
		t.Errorf("NewServer() error = %v, want ErrMissingCredentials", err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "Log in with Spotify") {
			t.Error("anonymous home should offer login")
		}
		if strings.Contains(body, `action="/sync"`) {
			t.Error("anonymous home should not offer sync")
		}
	})

	t.Run("logged in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(env.login(t))

		rec := env.do(req)
		body := rec.Body.String()
		if !strings.Contains(body, "Test User") {
			t.Error("home should show the user name")
		}
		if !strings.Contains(body, `action="/sync"`) {
			t.Error("home should offer sync")
		}
		if !strings.Contains(body, "Estaciones: Winter 2022") {
			t.Error("home should show an example playlist name")
		}
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if loc.Host != "accounts.spotify.com" {
		t.Errorf("redirect host = %q", loc.Host)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("login should set the state cookie")
	}
	if loc.Query().Get("state") != stateCookie.Value {
		t.Error("state in URL should match the cookie")
	}
	if !strings.Contains(loc.Query().Get("scope"), "playlist-modify-public") {
		t.Errorf("scope = %q", loc.Query().Get("scope"))
	}
}

func TestCallback_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"missing state cookie", "state=abc&code=x", ""},
		{"state mismatch", "state=abc&code=x", "other"},
		{"spotify error", "state=abc&error=access_denied", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}

			rec := env.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
	if env.server.sessions.Get(context.Background(), cookie.Value) != nil {
		t.Error("session should be deleted after logout")
	}
}

func TestSync_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(postSync(url.Values{}, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if env.spotify.posts != 0 {
		t.Error("no Spotify writes without a session")
	}
}

func TestSync_CreatesSeasonalPlaylists(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(postSync(url.Values{"dry_run": {"false"}}, cookie))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"Estaciones: Winter 2022", "Estaciones: Spring 2023", "up to date"} {
		if !strings.Contains(body, want) {
			t.Errorf("response missing %q", want)
		}
	}

	if len(env.spotify.playlists) != 2 {
		t.Fatalf("created %d playlists, want 2", len(env.spotify.playlists))
	}
	if got := env.spotify.added["pl-1"]; len(got) != 1 || got[0] != "spotify:track:a" {
		t.Errorf("pl-1 tracks = %v, want [spotify:track:a]", got)
	}
	if got := env.spotify.added["pl-2"]; len(got) != 1 || got[0] != "spotify:track:b" {
		t.Errorf("pl-2 tracks = %v, want [spotify:track:b]", got)
	}

	// A second run reuses both playlists.
	rec = env.do(postSync(url.Values{}, cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("second run status = %d", rec.Code)
	}
	if len(env.spotify.playlists) != 2 {
		t.Errorf("second run created playlists: have %d, want 2", len(env.spotify.playlists))
	}
}

func TestSync_DryRun(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(postSync(url.Values{"dry_run": {"on", "false"}}, cookie))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dry run") {
		t.Error("dry run response should say so")
	}
	if env.spotify.posts != 0 {
		t.Errorf("dry run made %d write requests, want 0", env.spotify.posts)
	}
}

func TestSync_HTMXPartial(t *testing.T) {
	env := newTestEnv(t)
	req := postSync(url.Values{"dry_run": {"on"}}, env.login(t))
	req.Header.Set("HX-Request", "true")

	rec := env.do(req)

	body := rec.Body.String()
	if strings.Contains(body, "<html") {
		t.Error("HTMX response should not include the layout")
	}
	if !strings.Contains(body, `id="sync-result"`) {
		t.Error("HTMX response should contain the result section")
	}
}

func TestSync_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.spotify.failSaved = true

	rec := env.do(postSync(url.Values{}, env.login(t)))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sync failed") {
		t.Error("failure should be reported on the page")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(postSync(url.Values{"dry_run": {"on"}}, env.login(t)))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `estaciones_tracks_classified_total{season="Winter"} 1`) {
		t.Errorf("metrics missing winter track count:\n%s", body)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/style.css", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
