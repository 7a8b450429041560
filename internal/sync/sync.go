// Package sync organizes saved tracks into seasonal playlists on Spotify.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-estaciones/internal/paging"
	"github.com/justestif/go-spotify-estaciones/internal/season"
	"github.com/justestif/go-spotify-estaciones/internal/spotify"
)

// Common errors.
var (
	// ErrNoOwner is returned when the remote reports an empty user ID.
	ErrNoOwner = errors.New("current user has no ID")
)

const (
	// DefaultBatchSize is the number of track IDs sent per membership write.
	DefaultBatchSize = spotify.MaxTracksPerRequest

	sampleTrackCount = 3
)

// SavedTrackSource lists the user's saved tracks one page at a time.
type SavedTrackSource interface {
	SavedTracks(ctx context.Context, offset, limit int) (paging.Page[spotify.Track], error)
}

// PlaylistSource lists the user's playlists one page at a time.
type PlaylistSource interface {
	Playlists(ctx context.Context, offset, limit int) (paging.Page[spotify.Playlist], error)
}

// PlaylistCreator creates a playlist and returns its ID.
type PlaylistCreator interface {
	CreatePlaylist(ctx context.Context, ownerID, name string) (string, error)
}

// MembershipWriter adds one batch of tracks to a playlist.
type MembershipWriter interface {
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// UserIdentifier returns the ID of the authenticated user.
type UserIdentifier interface {
	UserID(ctx context.Context) (string, error)
}

// Remote is everything the synchronizer needs from the music service.
// *spotify.Client satisfies it.
type Remote interface {
	SavedTrackSource
	PlaylistSource
	PlaylistCreator
	MembershipWriter
	UserIdentifier
}

var _ Remote = (*spotify.Client)(nil)

// Config holds the tunables of a synchronization run.
type Config struct {
	PageSize    int          // Items requested per listing page
	BatchSize   int          // Track IDs per membership write, at most DefaultBatchSize
	NamePrefix  string       // Prefix of every seasonal playlist name
	SeasonNames season.Names // Display name per season
	DryRun      bool         // Look up playlists but skip creates and writes
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:    paging.DefaultPageSize,
		BatchSize:   DefaultBatchSize,
		NamePrefix:  season.DefaultPrefix,
		SeasonNames: season.DefaultNames(),
	}
}

// Service synchronizes seasonal playlists against a remote library.
type Service struct {
	remote  Remote
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger used for progress reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records run statistics in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new sync service.
func New(remote Remote, opts ...Option) *Service {
	s := &Service{
		remote: remote,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.PageSize <= 0 {
		s.cfg.PageSize = paging.DefaultPageSize
	}
	if s.cfg.BatchSize <= 0 || s.cfg.BatchSize > DefaultBatchSize {
		s.cfg.BatchSize = DefaultBatchSize
	}
	if s.cfg.SeasonNames == nil {
		s.cfg.SeasonNames = season.DefaultNames()
	}
	return s
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	RunID       string
	DryRun      bool
	TracksCount int
	Buckets     []BucketResult // In the order buckets were first seen
	StartedAt   time.Time
	FinishedAt  time.Time
}

// BucketResult describes what happened to one seasonal playlist.
type BucketResult struct {
	Bucket       season.Bucket
	PlaylistName string
	PlaylistID   string // Empty for playlists a dry run would have created
	Created      bool
	ForeignOwner bool // Reused playlist belongs to another user
	TrackCount   int
	Batches      int             // Membership writes issued (planned, for a dry run)
	Samples      []spotify.Track // First few tracks of the bucket
}

// bucketTracks accumulates the tracks of one bucket in source order.
type bucketTracks struct {
	bucket season.Bucket
	tracks []spotify.Track
}

// run carries per-run state so that nothing leaks between runs.
type run struct {
	*Service
	log     *zap.Logger
	ownerID string
}

// Run walks the saved tracks, groups them by season and makes sure each
// season has a playlist containing its tracks.
//
// Playlists are matched by exact name, so repeating a run reuses the
// playlists it created before. Tracks are always re-submitted and membership
// is treated as a set by the remote. A failed membership write aborts
// the run without undoing earlier writes.
func (s *Service) Run(ctx context.Context) (*SyncResult, error) {
	r := &run{Service: s}
	result := &SyncResult{
		RunID:     uuid.NewString(),
		DryRun:    s.cfg.DryRun,
		StartedAt: s.now(),
	}
	r.log = s.logger.With(zap.String("run_id", result.RunID))
	r.log.Info("Starting seasonal playlist sync", zap.Bool("dry_run", s.cfg.DryRun))

	groups, total, err := r.collect(ctx)
	if err != nil {
		return nil, err
	}
	result.TracksCount = total
	r.log.Info("Classified saved tracks",
		zap.Int("tracks", total),
		zap.Int("buckets", len(groups)))

	for _, g := range groups {
		br, err := r.syncBucket(ctx, g)
		if err != nil {
			return nil, err
		}
		result.Buckets = append(result.Buckets, br)
	}

	result.FinishedAt = s.now()
	s.metrics.observeRun(result.FinishedAt.Sub(result.StartedAt))
	r.log.Info("Sync complete",
		zap.Int("tracks", result.TracksCount),
		zap.Int("playlists", len(result.Buckets)),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

// collect walks every saved track and groups tracks by bucket, keeping both
// the bucket discovery order and the source order within each bucket.
func (r *run) collect(ctx context.Context) ([]bucketTracks, int, error) {
	var groups []bucketTracks
	index := make(map[season.Bucket]int)
	count := 0

	walk := paging.Walk[spotify.Track](ctx, r.remote.SavedTracks,
		paging.WithPageSize(r.cfg.PageSize),
		paging.WithProgress(func(fetched, total int) {
			r.log.Info("Fetched saved tracks", zap.Int("fetched", fetched), zap.Int("total", total))
		}),
	)

	for track, err := range walk {
		if err != nil {
			return nil, 0, fmt.Errorf("walking saved tracks: %w", err)
		}

		bucket := season.Classify(track.AddedAt)
		i, ok := index[bucket]
		if !ok {
			i = len(groups)
			index[bucket] = i
			groups = append(groups, bucketTracks{bucket: bucket})
		}
		groups[i].tracks = append(groups[i].tracks, track)
		count++
		r.metrics.trackClassified(bucket.Season)
	}

	return groups, count, nil
}

// syncBucket resolves the playlist for one bucket and submits its tracks.
func (r *run) syncBucket(ctx context.Context, g bucketTracks) (BucketResult, error) {
	name := season.PlaylistName(r.cfg.NamePrefix, r.cfg.SeasonNames, g.bucket)
	log := r.log.With(zap.String("playlist", name), zap.Int("tracks", len(g.tracks)))

	br := BucketResult{
		Bucket:       g.bucket,
		PlaylistName: name,
		TrackCount:   len(g.tracks),
		Samples:      g.tracks[:min(sampleTrackCount, len(g.tracks))],
	}

	existing, found, err := r.findPlaylist(ctx, name)
	if err != nil {
		return BucketResult{}, err
	}

	switch {
	case found:
		br.PlaylistID = existing.ID
		log.Info("Found existing playlist, re-using", zap.String("playlist_id", existing.ID))
		r.metrics.playlistResolved(outcomeReused)

		if existing.OwnerID != "" {
			owner, err := r.owner(ctx)
			if err != nil {
				return BucketResult{}, err
			}
			if existing.OwnerID != owner {
				br.ForeignOwner = true
				log.Warn("Reusing playlist owned by another user",
					zap.String("playlist_id", existing.ID),
					zap.String("owner_id", existing.OwnerID))
			}
		}
	case r.cfg.DryRun:
		br.Created = true
		log.Info("Dry run: would create playlist")
	default:
		id, err := r.createPlaylist(ctx, name)
		if err != nil {
			return BucketResult{}, err
		}
		br.PlaylistID = id
		br.Created = true
		log.Info("Couldn't find playlist, created it", zap.String("playlist_id", id))
		r.metrics.playlistResolved(outcomeCreated)
	}

	batches := Chunk(trackIDs(g.tracks), r.cfg.BatchSize)
	if r.cfg.DryRun {
		br.Batches = len(batches)
		return br, nil
	}

	for i, batch := range batches {
		if err := r.remote.AddTracksToPlaylist(ctx, br.PlaylistID, batch); err != nil {
			r.metrics.batchWritten(statusError)
			return BucketResult{}, fmt.Errorf("adding batch %d/%d to %q: %w", i+1, len(batches), name, err)
		}
		r.metrics.batchWritten(statusOK)
		br.Batches++
		log.Debug("Added tracks", zap.Int("batch", i+1), zap.Int("size", len(batch)))
	}

	return br, nil
}

// findPlaylist returns the first playlist named exactly name.
func (r *run) findPlaylist(ctx context.Context, name string) (spotify.Playlist, bool, error) {
	walk := paging.Walk[spotify.Playlist](ctx, r.remote.Playlists, paging.WithPageSize(r.cfg.PageSize))
	p, found, err := paging.Find(walk, func(p spotify.Playlist) bool {
		return p.Name == name
	})
	if err != nil {
		return spotify.Playlist{}, false, fmt.Errorf("looking up playlist %q: %w", name, err)
	}
	return p, found, nil
}

// owner returns the current user ID, fetching it on first use.
func (r *run) owner(ctx context.Context) (string, error) {
	if r.ownerID != "" {
		return r.ownerID, nil
	}

	id, err := r.remote.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving playlist owner: %w", err)
	}
	if id == "" {
		return "", ErrNoOwner
	}
	r.ownerID = id
	return id, nil
}

// createPlaylist creates a playlist owned by the current user.
func (r *run) createPlaylist(ctx context.Context, name string) (string, error) {
	owner, err := r.owner(ctx)
	if err != nil {
		return "", err
	}

	id, err := r.remote.CreatePlaylist(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("creating playlist %q: %w", name, err)
	}
	return id, nil
}

func trackIDs(tracks []spotify.Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
