// Package config loads runtime configuration for the seasonal playlist organizer.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/justestif/go-spotify-estaciones/internal/paging"
	"github.com/justestif/go-spotify-estaciones/internal/season"
	"github.com/justestif/go-spotify-estaciones/internal/spotify"
	"github.com/justestif/go-spotify-estaciones/internal/sync"
)

var (
	// ErrMissingCredentials is returned when the Spotify client ID or secret is not set.
	ErrMissingCredentials = errors.New("missing Spotify client ID or secret (set SPOTIFY_ID and SPOTIFY_SECRET)")

	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Keys shared by flags, environment variables and the .env file.
const (
	KeySpotifyID         = "spotify-client-id"
	KeySpotifySecret     = "spotify-client-secret"
	KeyRedirectURL       = "spotify-redirect-url"
	KeyScopes            = "spotify-scopes"
	KeyTokenPath         = "spotify-token-path"
	KeyRequestsPerSecond = "spotify-requests-per-second"
	KeyPublicPlaylists   = "playlist-public"
	KeyPlaylistDesc      = "playlist-description"
	KeyPlaylistPrefix    = "playlist-prefix"
	KeySeasonNames       = "season-names"
	KeyPageSize          = "page-size"
	KeyBatchSize         = "batch-size"
	KeyDryRun            = "dry-run"
	KeyServerAddr        = "server-addr"
	KeyLogLevel          = "log-level"
)

const (
	defaultRedirectURL    = "http://127.0.0.1:8080/callback"
	defaultServerAddr     = "127.0.0.1:8080"
	defaultRequestsPerSec = 10
)

// DefaultScopes are the Spotify permissions the organizer asks for.
var DefaultScopes = []string{
	"user-library-read",
	"playlist-modify-public",
	"user-read-private",
	"playlist-read-private",
	"user-library-modify",
	"playlist-read-collaborative",
	"playlist-modify-private",
}

// Config is the complete runtime configuration.
type Config struct {
	Spotify SpotifyConfig
	Sync    sync.Config
	Server  ServerConfig
	Log     LogConfig
}

// SpotifyConfig holds Spotify API credentials and client behaviour.
type SpotifyConfig struct {
	ClientID            string
	ClientSecret        string
	RedirectURL         string
	Scopes              []string
	TokenPath           string // Empty means the default under the user config dir
	RequestsPerSecond   float64
	PublicPlaylists     bool
	PlaylistDescription string
}

// RemoteOptions maps the settings onto options for the library client.
func (c SpotifyConfig) RemoteOptions() []spotify.Option {
	return []spotify.Option{
		spotify.WithRateLimit(c.RequestsPerSecond, 1),
		spotify.WithPlaylistDescription(c.PlaylistDescription),
		spotify.WithPublicPlaylists(c.PublicPlaylists),
	}
}

// ServerConfig holds web server settings.
type ServerConfig struct {
	Addr string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL:         defaultRedirectURL,
			Scopes:              append([]string(nil), DefaultScopes...),
			RequestsPerSecond:   defaultRequestsPerSec,
			PublicPlaylists:     true,
			PlaylistDescription: "",
		},
		Sync:   sync.DefaultConfig(),
		Server: ServerConfig{Addr: defaultServerAddr},
		Log:    LogConfig{Level: "info"},
	}
}

// SetDefaults registers default values on v so that unset keys resolve to them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyRedirectURL, d.Spotify.RedirectURL)
	v.SetDefault(KeyScopes, d.Spotify.Scopes)
	v.SetDefault(KeyRequestsPerSecond, d.Spotify.RequestsPerSecond)
	v.SetDefault(KeyPublicPlaylists, d.Spotify.PublicPlaylists)
	v.SetDefault(KeyPlaylistPrefix, d.Sync.NamePrefix)
	v.SetDefault(KeyPageSize, d.Sync.PageSize)
	v.SetDefault(KeyBatchSize, d.Sync.BatchSize)
	v.SetDefault(KeyServerAddr, d.Server.Addr)
	v.SetDefault(KeyLogLevel, d.Log.Level)
}

// BindEnv makes v read ESTACIONES_* variables, plus the SPOTIFY_ID and
// SPOTIFY_SECRET names used by the Spotify tooling.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("ESTACIONES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(KeySpotifyID, "ESTACIONES_SPOTIFY_CLIENT_ID", "SPOTIFY_ID"); err != nil {
		return fmt.Errorf("binding %s: %w", KeySpotifyID, err)
	}
	if err := v.BindEnv(KeySpotifySecret, "ESTACIONES_SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET"); err != nil {
		return fmt.Errorf("binding %s: %w", KeySpotifySecret, err)
	}
	return nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	cfg.Spotify.ClientID = v.GetString(KeySpotifyID)
	cfg.Spotify.ClientSecret = v.GetString(KeySpotifySecret)
	if u := v.GetString(KeyRedirectURL); u != "" {
		cfg.Spotify.RedirectURL = u
	}
	if scopes := v.GetStringSlice(KeyScopes); len(scopes) > 0 {
		cfg.Spotify.Scopes = scopes
	}
	cfg.Spotify.TokenPath = v.GetString(KeyTokenPath)
	if v.IsSet(KeyRequestsPerSecond) {
		cfg.Spotify.RequestsPerSecond = v.GetFloat64(KeyRequestsPerSecond)
	}
	if v.IsSet(KeyPublicPlaylists) {
		cfg.Spotify.PublicPlaylists = v.GetBool(KeyPublicPlaylists)
	}
	cfg.Spotify.PlaylistDescription = v.GetString(KeyPlaylistDesc)

	if v.IsSet(KeyPlaylistPrefix) {
		cfg.Sync.NamePrefix = v.GetString(KeyPlaylistPrefix)
	}
	if v.IsSet(KeyPageSize) {
		cfg.Sync.PageSize = v.GetInt(KeyPageSize)
	}
	if v.IsSet(KeyBatchSize) {
		cfg.Sync.BatchSize = v.GetInt(KeyBatchSize)
	}
	cfg.Sync.DryRun = v.GetBool(KeyDryRun)

	names, err := parseSeasonNames(v.GetStringMapString(KeySeasonNames))
	if err != nil {
		return nil, err
	}
	for s, name := range names {
		cfg.Sync.SeasonNames[s] = name
	}

	if addr := v.GetString(KeyServerAddr); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := v.GetString(KeyLogLevel); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if c.Sync.PageSize < 1 || c.Sync.PageSize > paging.DefaultPageSize {
		return fmt.Errorf("%w: page size %d must be between 1 and %d", ErrInvalidConfig, c.Sync.PageSize, paging.DefaultPageSize)
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > sync.DefaultBatchSize {
		return fmt.Errorf("%w: batch size %d must be between 1 and %d", ErrInvalidConfig, c.Sync.BatchSize, sync.DefaultBatchSize)
	}
	if c.Spotify.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// parseSeasonNames turns {"winter": "Invierno"} into season keys.
func parseSeasonNames(raw map[string]string) (season.Names, error) {
	names := make(season.Names, len(raw))
	for key, name := range raw {
		s, ok := seasonByName(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown season %q in %s", ErrInvalidConfig, key, KeySeasonNames)
		}
		names[s] = name
	}
	return names, nil
}

func seasonByName(name string) (season.Season, bool) {
	for _, s := range season.All {
		if strings.EqualFold(s.String(), name) {
			return s, true
		}
	}
	return 0, false
}
