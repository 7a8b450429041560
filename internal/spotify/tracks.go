package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-estaciones/internal/paging"
)

// SavedTracks fetches one page of the user's saved tracks.
// Spotify caps limit at 50 for this endpoint.
func (c *Client) SavedTracks(ctx context.Context, offset, limit int) (paging.Page[Track], error) {
	if err := c.wait(ctx); err != nil {
		return paging.Page[Track]{}, err
	}

	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return paging.Page[Track]{}, fmt.Errorf("fetching saved tracks (offset %d): %w", offset, err)
	}

	tracks := make([]Track, 0, len(page.Tracks))
	for _, saved := range page.Tracks {
		track, err := convertTrack(saved)
		if err != nil {
			return paging.Page[Track]{}, err
		}
		tracks = append(tracks, track)
	}

	return paging.Page[Track]{Items: tracks, Total: int(page.Total)}, nil
}

// convertTrack converts a Spotify SavedTrack to a Track.
func convertTrack(saved spotify.SavedTrack) (Track, error) {
	artists := make([]string, len(saved.Artists))
	for i, a := range saved.Artists {
		artists[i] = a.Name
	}

	addedAt, err := time.Parse(time.RFC3339, saved.AddedAt)
	if err != nil {
		return Track{}, fmt.Errorf("parsing added_at %q for track %s: %w", saved.AddedAt, saved.ID, err)
	}

	return Track{
		ID:      saved.ID.String(),
		Name:    saved.Name,
		Artist:  strings.Join(artists, ", "),
		AddedAt: addedAt,
	}, nil
}
