package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-estaciones/internal/paging"
)

// MaxTracksPerRequest is the most items Spotify accepts in one
// add-items request.
const MaxTracksPerRequest = 100

// ErrTooManyTracks is returned when a single add request exceeds MaxTracksPerRequest.
var ErrTooManyTracks = errors.New("too many tracks for one request")

// Playlists fetches one page of the current user's playlists, including
// followed playlists owned by others.
func (c *Client) Playlists(ctx context.Context, offset, limit int) (paging.Page[Playlist], error) {
	if err := c.wait(ctx); err != nil {
		return paging.Page[Playlist]{}, err
	}

	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return paging.Page[Playlist]{}, fmt.Errorf("fetching playlists (offset %d): %w", offset, err)
	}

	playlists := make([]Playlist, len(page.Playlists))
	for i, p := range page.Playlists {
		playlists[i] = Playlist{
			ID:      p.ID.String(),
			Name:    p.Name,
			OwnerID: p.Owner.ID,
		}
	}

	return paging.Page[Playlist]{Items: playlists, Total: int(page.Total)}, nil
}

// CreatePlaylist creates a new playlist owned by ownerID.
// Returns the playlist ID.
func (c *Client) CreatePlaylist(ctx context.Context, ownerID, name string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	playlist, err := c.api.CreatePlaylistForUser(ctx, ownerID, name, c.description, c.public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist %q: %w", name, err)
	}

	return playlist.ID.String(), nil
}

// AddTracksToPlaylist adds up to MaxTracksPerRequest tracks to a playlist in
// a single request. Callers split larger sets themselves.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > MaxTracksPerRequest {
		return fmt.Errorf("%w: %d > %d", ErrTooManyTracks, len(trackIDs), MaxTracksPerRequest)
	}

	if err := c.wait(ctx); err != nil {
		return err
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...); err != nil {
		return fmt.Errorf("adding %d tracks to playlist %s: %w", len(ids), playlistID, err)
	}

	return nil
}
