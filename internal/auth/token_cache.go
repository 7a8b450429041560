// Package auth provides Spotify OAuth2 authentication with token caching.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// DefaultTokenPath is where tokens live when no path is configured,
// relative to the user config dir.
var DefaultTokenPath = filepath.Join("spotify-estaciones", "token.json")

// TokenCache keeps the OAuth token on disk between runs so the browser
// login is only needed once.
type TokenCache struct {
	path string
}

// NewTokenCache returns a cache stored at path. An empty path resolves to
// DefaultTokenPath under os.UserConfigDir.
func NewTokenCache(path string) (*TokenCache, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locating user config dir: %w", err)
		}
		path = filepath.Join(dir, DefaultTokenPath)
	}
	return &TokenCache{path: path}, nil
}

// Path returns the token file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the cached token, or nil when there is no file or the file
// holds neither an access nor a refresh token.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	token := new(oauth2.Token)
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", c.path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, nil
	}
	return token, nil
}

// Save replaces the cached token. The file is written next to its final
// location and renamed into place, so a crash never leaves half a token.
func (c *TokenCache) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	// CreateTemp opens with 0600
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// Delete removes the token file. A missing file is not an error.
func (c *TokenCache) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
