package season

import "fmt"

// DefaultPrefix is prepended to every seasonal playlist name.
const DefaultPrefix = "Estaciones:"

// Names maps seasons to the display names used in playlist titles.
type Names map[Season]string

// DefaultNames returns the English season names.
func DefaultNames() Names {
	names := make(Names, len(All))
	for _, s := range All {
		names[s] = s.String()
	}
	return names
}

// Name returns the display name for s, falling back to s.String().
func (n Names) Name(s Season) string {
	if name, ok := n[s]; ok && name != "" {
		return name
	}
	return s.String()
}

// PlaylistName derives the playlist title for a bucket, e.g.
// "Estaciones: Winter 2022". The mapping is deterministic so an existing
// playlist can be found again by name on a later run.
func PlaylistName(prefix string, names Names, b Bucket) string {
	if prefix == "" {
		return fmt.Sprintf("%s %d", names.Name(b.Season), b.Year)
	}
	return fmt.Sprintf("%s %s %d", prefix, names.Name(b.Season), b.Year)
}
