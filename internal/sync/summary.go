package sync

import (
	"fmt"
	"strings"
)

// FormatSummary returns a human-readable summary of a sync run.
// Shows each playlist with its track count, whether it was created or
// reused, and up to three sample tracks.
func FormatSummary(result *SyncResult) string {
	var sb strings.Builder

	if result == nil || len(result.Buckets) == 0 {
		sb.WriteString("No saved tracks found, nothing to organize\n")
		return sb.String()
	}

	created := 0
	for _, b := range result.Buckets {
		if b.Created {
			created++
		}
	}

	playlistWord := "playlist"
	if len(result.Buckets) > 1 {
		playlistWord = "playlists"
	}

	sb.WriteString(fmt.Sprintf("Sorted %d tracks into %d %s (%d created, %d reused)",
		result.TracksCount, len(result.Buckets), playlistWord, created, len(result.Buckets)-created))
	if result.DryRun {
		sb.WriteString(" [dry run, no changes made]")
	}
	sb.WriteString("\n")

	for _, b := range result.Buckets {
		sb.WriteString("\n")
		sb.WriteString(formatBucket(b))
	}

	return sb.String()
}

// formatBucket formats a single playlist with its sample tracks.
func formatBucket(b BucketResult) string {
	var sb strings.Builder

	trackWord := "track"
	if b.TrackCount > 1 {
		trackWord = "tracks"
	}

	status := "reused"
	switch {
	case b.Created:
		status = "created"
	case b.ForeignOwner:
		status = "reused, owned by another user"
	}

	sb.WriteString(fmt.Sprintf("%s: %d %s, %s\n", b.PlaylistName, b.TrackCount, trackWord, status))

	for _, track := range b.Samples {
		if track.Artist == "" {
			sb.WriteString(fmt.Sprintf("  • %q\n", track.Name))
			continue
		}
		sb.WriteString(fmt.Sprintf("  • %q - %s\n", track.Name, track.Artist))
	}

	if remaining := b.TrackCount - len(b.Samples); remaining > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", remaining))
	}

	return sb.String()
}
