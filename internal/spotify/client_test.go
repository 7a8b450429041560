package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
)

func TestConvertTrack(t *testing.T) {
	tests := []struct {
		name           string
		saved          spotify.SavedTrack
		expectedID     string
		expectedName   string
		expectedArtist string
		expectedTime   time.Time
	}{
		{
			name: "single artist",
			saved: spotify.SavedTrack{
				AddedAt: "2024-01-15T10:30:00Z",
				FullTrack: spotify.FullTrack{
					SimpleTrack: spotify.SimpleTrack{
						ID:   "track123",
						Name: "Test Song",
						Artists: []spotify.SimpleArtist{
							{Name: "Artist One"},
						},
					},
				},
			},
			expectedID:     "track123",
			expectedName:   "Test Song",
			expectedArtist: "Artist One",
			expectedTime:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "multiple artists",
			saved: spotify.SavedTrack{
				AddedAt: "2023-06-20T15:45:00Z",
				FullTrack: spotify.FullTrack{
					SimpleTrack: spotify.SimpleTrack{
						ID:   "track456",
						Name: "Collab Track",
						Artists: []spotify.SimpleArtist{
							{Name: "Artist A"},
							{Name: "Artist B"},
							{Name: "Artist C"},
						},
					},
				},
			},
			expectedID:     "track456",
			expectedName:   "Collab Track",
			expectedArtist: "Artist A, Artist B, Artist C",
			expectedTime:   time.Date(2023, 6, 20, 15, 45, 0, 0, time.UTC),
		},
		{
			name: "offset timestamp",
			saved: spotify.SavedTrack{
				AddedAt: "2024-02-29T22:00:00-05:00",
				FullTrack: spotify.FullTrack{
					SimpleTrack: spotify.SimpleTrack{
						ID:      "track000",
						Name:    "Unknown Track",
						Artists: []spotify.SimpleArtist{},
					},
				},
			},
			expectedID:     "track000",
			expectedName:   "Unknown Track",
			expectedArtist: "",
			expectedTime:   time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertTrack(tt.saved)
			if err != nil {
				t.Fatalf("convertTrack() error = %v", err)
			}

			if got.ID != tt.expectedID {
				t.Errorf("ID = %q, want %q", got.ID, tt.expectedID)
			}
			if got.Name != tt.expectedName {
				t.Errorf("Name = %q, want %q", got.Name, tt.expectedName)
			}
			if got.Artist != tt.expectedArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.expectedArtist)
			}
			if !got.AddedAt.Equal(tt.expectedTime) {
				t.Errorf("AddedAt = %v, want %v", got.AddedAt, tt.expectedTime)
			}
		})
	}
}

func TestConvertTrackInvalidTimestamp(t *testing.T) {
	saved := spotify.SavedTrack{
		AddedAt: "not-a-valid-timestamp",
		FullTrack: spotify.FullTrack{
			SimpleTrack: spotify.SimpleTrack{ID: "track789", Name: "Old Song"},
		},
	}

	if _, err := convertTrack(saved); err == nil {
		t.Error("convertTrack() should fail for a malformed added_at")
	}
}

// fakeAPI is an in-process stand-in for the Spotify Web API.
type fakeAPI struct {
	t         *testing.T
	savedJSON string
	listJSON  string
	failPaths map[string]bool

	queries []string
	created []map[string]any
	added   [][]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.queries = append(f.queries, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)

	if f.failPaths[r.URL.Path] {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"status":400,"message":"bad request"}}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/me":
		io.WriteString(w, `{"id":"user-1","display_name":"Test User"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/me/tracks":
		io.WriteString(w, f.savedJSON)
	case r.Method == http.MethodGet && r.URL.Path == "/me/playlists":
		io.WriteString(w, f.listJSON)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/users/"):
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decoding create body: %v", err)
		}
		f.created = append(f.created, body)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"new-playlist","name":"created"}`)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/playlists/"):
		var body struct {
			URIs []string `json:"uris"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decoding add body: %v", err)
		}
		f.added = append(f.added, body.URIs)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"snapshot_id":"snap"}`)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	raw := spotify.New(srv.Client(), spotify.WithBaseURL(srv.URL+"/"))
	return New(raw, opts...)
}

func TestSavedTracks(t *testing.T) {
	api := &fakeAPI{
		savedJSON: `{
			"items": [
				{"added_at": "2023-02-15T10:00:00Z", "track": {"id": "a", "name": "Song A", "artists": [{"name": "X"}]}},
				{"added_at": "2023-04-10T10:00:00Z", "track": {"id": "b", "name": "Song B", "artists": [{"name": "Y"}, {"name": "Z"}]}}
			],
			"total": 230, "limit": 50, "offset": 100
		}`,
	}
	client := newTestClient(t, api)

	page, err := client.SavedTracks(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("SavedTracks() error = %v", err)
	}

	if page.Total != 230 {
		t.Errorf("Total = %d, want 230", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(page.Items))
	}
	if page.Items[1].ID != "b" || page.Items[1].Artist != "Y, Z" {
		t.Errorf("second item = %+v", page.Items[1])
	}
	if len(api.queries) != 1 || !strings.Contains(api.queries[0], "offset=100") || !strings.Contains(api.queries[0], "limit=50") {
		t.Errorf("queries = %v, want one request with limit=50 and offset=100", api.queries)
	}
}

func TestSavedTracksMalformedTimestamp(t *testing.T) {
	api := &fakeAPI{
		savedJSON: `{"items": [{"added_at": "yesterday", "track": {"id": "a", "name": "Song A"}}], "total": 1}`,
	}
	client := newTestClient(t, api)

	if _, err := client.SavedTracks(context.Background(), 0, 50); err == nil {
		t.Error("SavedTracks() should fail on a malformed added_at")
	}
}

func TestPlaylists(t *testing.T) {
	api := &fakeAPI{
		listJSON: `{
			"items": [
				{"id": "p1", "name": "Estaciones: Winter 2022", "owner": {"id": "user-1"}},
				{"id": "p2", "name": "Road Trip", "owner": {"id": "someone"}}
			],
			"total": 2
		}`,
	}
	client := newTestClient(t, api)

	page, err := client.Playlists(context.Background(), 0, 50)
	if err != nil {
		t.Fatalf("Playlists() error = %v", err)
	}

	want := []Playlist{
		{ID: "p1", Name: "Estaciones: Winter 2022", OwnerID: "user-1"},
		{ID: "p2", Name: "Road Trip", OwnerID: "someone"},
	}
	if page.Total != 2 || len(page.Items) != len(want) {
		t.Fatalf("page = %+v, want %d items", page, len(want))
	}
	for i := range want {
		if page.Items[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, page.Items[i], want[i])
		}
	}
}

func TestPlaylistsError(t *testing.T) {
	api := &fakeAPI{failPaths: map[string]bool{"/me/playlists": true}}
	client := newTestClient(t, api)

	_, err := client.Playlists(context.Background(), 0, 50)
	if err == nil {
		t.Fatal("Playlists() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "fetching playlists") {
		t.Errorf("error = %q, want context about fetching playlists", err)
	}
}

func TestCreatePlaylist(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api,
		WithPlaylistDescription("Seasonal mix"),
		WithPublicPlaylists(false),
	)

	id, err := client.CreatePlaylist(context.Background(), "user-1", "Estaciones: Spring 2023")
	if err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}

	if id != "new-playlist" {
		t.Errorf("id = %q, want %q", id, "new-playlist")
	}
	if len(api.created) != 1 {
		t.Fatalf("got %d create requests, want 1", len(api.created))
	}
	body := api.created[0]
	if body["name"] != "Estaciones: Spring 2023" {
		t.Errorf("name = %v", body["name"])
	}
	if body["description"] != "Seasonal mix" {
		t.Errorf("description = %v", body["description"])
	}
	if body["public"] != false {
		t.Errorf("public = %v, want false", body["public"])
	}
	if !strings.HasPrefix(api.queries[0], "POST /users/user-1/playlists") {
		t.Errorf("request = %q", api.queries[0])
	}
}

func TestAddTracksToPlaylist(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)

	err := client.AddTracksToPlaylist(context.Background(), "p1", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("AddTracksToPlaylist() error = %v", err)
	}

	if len(api.added) != 1 {
		t.Fatalf("got %d add requests, want 1", len(api.added))
	}
	want := []string{"spotify:track:a", "spotify:track:b", "spotify:track:c"}
	if strings.Join(api.added[0], ",") != strings.Join(want, ",") {
		t.Errorf("uris = %v, want %v", api.added[0], want)
	}
}

func TestAddTracksToPlaylistLimits(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)

	if err := client.AddTracksToPlaylist(context.Background(), "p1", nil); err != nil {
		t.Errorf("empty add error = %v, want nil", err)
	}

	ids := make([]string, MaxTracksPerRequest+1)
	for i := range ids {
		ids[i] = "t"
	}
	err := client.AddTracksToPlaylist(context.Background(), "p1", ids)
	if !errors.Is(err, ErrTooManyTracks) {
		t.Errorf("oversized add error = %v, want %v", err, ErrTooManyTracks)
	}

	if len(api.queries) != 0 {
		t.Errorf("made %d requests, want 0", len(api.queries))
	}
}

func TestUserID(t *testing.T) {
	client := newTestClient(t, &fakeAPI{})

	id, err := client.UserID(context.Background())
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if id != "user-1" {
		t.Errorf("UserID() = %q, want %q", id, "user-1")
	}
}

func TestNotAuthenticated(t *testing.T) {
	client := New(nil)

	if _, err := client.UserID(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("UserID() error = %v, want %v", err, ErrNotAuthenticated)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, &fakeAPI{}, WithRateLimit(0.001, 1))

	// First request consumes the burst.
	if _, err := client.UserID(context.Background()); err != nil {
		t.Fatalf("first UserID() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.UserID(ctx); err == nil {
		t.Error("second UserID() should fail while waiting for the limiter")
	}
}
