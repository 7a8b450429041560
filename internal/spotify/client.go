// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"
)

// ErrNotAuthenticated is returned when the client has no underlying API client.
var ErrNotAuthenticated = errors.New("spotify client not authenticated")

// Client wraps the Spotify API client with the operations the playlist
// synchronizer needs.
type Client struct {
	api         *spotify.Client
	limiter     *rate.Limiter
	description string
	public      bool
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit paces outgoing requests to rps requests per second.
// Zero or negative disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithPlaylistDescription sets the description used for new playlists.
func WithPlaylistDescription(description string) Option {
	return func(c *Client) {
		c.description = description
	}
}

// WithPublicPlaylists controls whether new playlists are public.
func WithPublicPlaylists(public bool) Option {
	return func(c *Client) {
		c.public = public
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Inf, 1),
		public:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return string(user.ID), nil
}

// wait blocks until the rate limiter admits another request.
func (c *Client) wait(ctx context.Context) error {
	if c.api == nil {
		return ErrNotAuthenticated
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}
