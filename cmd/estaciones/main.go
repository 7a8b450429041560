// Command estaciones sorts your Spotify saved tracks into seasonal playlists.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justestif/go-spotify-estaciones/internal/auth"
	"github.com/justestif/go-spotify-estaciones/internal/config"
	spotifyapi "github.com/justestif/go-spotify-estaciones/internal/spotify"
	seasonsync "github.com/justestif/go-spotify-estaciones/internal/sync"
	"github.com/justestif/go-spotify-estaciones/internal/web"
	webfs "github.com/justestif/go-spotify-estaciones/web"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "estaciones",
	Short: "Sort Spotify saved tracks into seasonal playlists",
	Long: `estaciones reads your Spotify saved tracks and adds each one to a playlist
named after the season it was saved in, e.g. "Estaciones: Winter 2022".
Playlists are created once and reused; running again only adds what is missing.

Running estaciones without a subcommand is the same as "estaciones sync".`,
	SilenceUsage: true,
	RunE:         runSync,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sort saved tracks into seasonal playlists",
	RunE:  runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI",
	RunE:  runServe,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached Spotify token",
	RunE:  runLogout,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "file with environment variables to load")
	flags.String(config.KeyLogLevel, d.Log.Level, "log level (debug, info, warn, error)")
	flags.String(config.KeySpotifyID, "", "Spotify client ID (or SPOTIFY_ID)")
	flags.String(config.KeySpotifySecret, "", "Spotify client secret (or SPOTIFY_SECRET)")
	flags.String(config.KeyRedirectURL, d.Spotify.RedirectURL, "OAuth redirect URL registered with Spotify")
	flags.StringSlice(config.KeyScopes, d.Spotify.Scopes, "OAuth scopes to request")
	flags.String(config.KeyTokenPath, "", "token cache file (default is under the user config dir)")
	flags.Float64(config.KeyRequestsPerSecond, d.Spotify.RequestsPerSecond, "maximum Spotify requests per second (0 for no limit)")
	flags.Bool(config.KeyPublicPlaylists, d.Spotify.PublicPlaylists, "create playlists as public")
	flags.String(config.KeyPlaylistDesc, "", "description for created playlists")
	flags.String(config.KeyPlaylistPrefix, d.Sync.NamePrefix, "playlist name prefix")
	flags.StringToString(config.KeySeasonNames, nil, "season display names, e.g. winter=Invierno,spring=Primavera")
	flags.Int(config.KeyPageSize, d.Sync.PageSize, "items per page when reading from Spotify (max 50)")
	flags.Int(config.KeyBatchSize, d.Sync.BatchSize, "tracks per playlist write (max 100)")
	flags.String(config.KeyServerAddr, d.Server.Addr, "web server listen address")

	syncCmd.Flags().Bool(config.KeyDryRun, false, "show what would change without writing to Spotify")
	rootCmd.Flags().AddFlagSet(syncCmd.Flags())

	rootCmd.AddCommand(syncCmd, serveCmd, logoutCmd)

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := gotenv.Load(envFile); err != nil {
		// a missing .env file is fine
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
		}
	}

	config.SetDefaults(viper.GetViper())
	if err := config.BindEnv(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind environment: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds a logger for it.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	// dry-run is local to sync, so bind whichever command is running
	if f := cmd.Flags().Lookup(config.KeyDryRun); f != nil {
		if err := viper.BindPFlag(config.KeyDryRun, f); err != nil {
			return nil, nil, fmt.Errorf("binding %s: %w", config.KeyDryRun, err)
		}
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	authenticator, err := auth.New(cfg.Spotify,
		auth.WithLogger(logger),
		auth.WithOutput(cmd.ErrOrStderr()),
	)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	api, err := authenticator.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	svc := seasonsync.New(
		spotifyapi.New(api, cfg.Spotify.RemoteOptions()...),
		seasonsync.WithConfig(cfg.Sync),
		seasonsync.WithLogger(logger),
	)

	result, err := svc.Run(ctx)
	authenticator.Persist(api)
	if err != nil {
		return fmt.Errorf("syncing playlists: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), seasonsync.FormatSummary(result))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	server, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Server.Addr,
		Spotify:     cfg.Spotify,
		Sync:        cfg.Sync,
		TemplatesFS: webfs.Templates(),
		StaticFS:    webfs.Static(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	return server.Run(ctx)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cache, err := auth.NewTokenCache(viper.GetString(config.KeyTokenPath))
	if err != nil {
		return fmt.Errorf("opening token cache: %w", err)
	}

	if err := cache.Delete(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed cached token at %s\n", cache.Path())
	return nil
}
