package spotify

import "time"

// Track is a saved track from the user's library.
type Track struct {
	ID      string
	Name    string
	Artist  string    // Comma-separated artist names
	AddedAt time.Time // When the user saved the track
}

// Playlist is a playlist visible in the user's library.
type Playlist struct {
	ID      string
	Name    string
	OwnerID string
}
