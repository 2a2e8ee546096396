package library

import (
	"fmt"
	"path"
	"strings"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/util"
)

// Directory names used when a track has no artist or album
const (
	UnknownArtist = "UNKNOWN_ARTIST"
	UnknownAlbum  = "UNKNOWN_ALBUM"
)

// DatePathOptions controls GenerateDatePaths
type DatePathOptions struct {
	// LocationRoot is the prefix every Location must carry. Defaults to
	// collection.DefaultRoot.
	LocationRoot string

	// TrackIDs restricts the output to these tracks when non-empty
	TrackIDs []string

	// IncludeMetadata adds artist and album directories below the date
	IncludeMetadata bool
}

// GenerateDatePaths maps each cataloged file to its place in a date-organized
// tree under targetRoot:
//
//	<targetRoot>/<YYYY>/<MM name>/<DD>[/<artist>/<album>]/<filename>
func GenerateDatePaths(cat *collection.Catalog, targetRoot string, opts DatePathOptions) ([]collection.FileMapping, error) {
	root := opts.LocationRoot
	if root == "" {
		root = collection.DefaultRoot
	}
	var filter map[string]struct{}
	if len(opts.TrackIDs) > 0 {
		filter = toSet(opts.TrackIDs)
	}

	mappings := make([]collection.FileMapping, 0, len(cat.Collection.Tracks))
	for _, track := range cat.Collection.Tracks {
		if !collection.HasRoot(root, track.Location) {
			util.WarnLog("Unexpected path %s, will skip", track.Location)
			continue
		}
		source, err := collection.LocationToPath(root, track.Location)
		if err != nil {
			return nil, err
		}
		if filter != nil {
			if _, ok := filter[track.TrackID]; !ok {
				util.DebugLog("Skip non-playlist track: '%s'", source)
				continue
			}
		}

		dest, err := datePath(track, source, opts.IncludeMetadata)
		if err != nil {
			return nil, err
		}
		if c, ok := datectx.ExtractFrom(dest, dateSegmentIndex(source)); ok {
			dest = datectx.Rebase(dest, targetRoot, c)
		}
		mappings = append(mappings, collection.FileMapping{Source: source, Dest: dest})
	}
	return mappings, nil
}

// datePath inserts the date context, and optionally artist/album, between the
// source directory and the file name
func datePath(track *collection.Track, source string, includeMetadata bool) (string, error) {
	dateContext, err := datectx.BuildPath(track.DateAdded)
	if err != nil {
		return "", fmt.Errorf("track %s (%s): %w", track.TrackID, source, err)
	}

	dir, file := path.Split(source)
	parts := []string{"/", dir, dateContext}
	if includeMetadata {
		parts = append(parts,
			util.CleanDirname(track.Artist, UnknownArtist),
			util.CleanDirname(track.Album, UnknownAlbum))
	}
	parts = append(parts, file)
	return path.Join(parts...), nil
}

// dateSegmentIndex is the segment index at which datePath places the year
func dateSegmentIndex(source string) int {
	dir := path.Clean("/" + path.Dir(source))
	if dir == "/" {
		return 1
	}
	return len(strings.Split(dir, "/"))
}

// FilterPathMappings keeps the mappings whose source file belongs to a track
// in the named playlist
func FilterPathMappings(mappings []collection.FileMapping, cat *collection.Catalog, playlist, locationRoot string) ([]collection.FileMapping, error) {
	if locationRoot == "" {
		locationRoot = collection.DefaultRoot
	}
	keys, err := PlaylistTrackIDs(cat, playlist)
	if err != nil {
		return nil, err
	}
	keySet := toSet(keys)

	paths := make(map[string]struct{}, len(keys))
	for _, track := range cat.Collection.Tracks {
		if _, ok := keySet[track.TrackID]; !ok || track.Location == "" {
			continue
		}
		p, err := collection.LocationToPath(locationRoot, track.Location)
		if err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}

	filtered := make([]collection.FileMapping, 0, len(mappings))
	for _, m := range mappings {
		if _, ok := paths[m.Source]; ok {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// FormatMappings renders mappings one per line as "source->dest"
func FormatMappings(mappings []collection.FileMapping) string {
	var b strings.Builder
	for i, m := range mappings {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimSpace(m.Source))
		b.WriteString(MappingDelimiter)
		b.WriteString(strings.TrimSpace(m.Dest))
	}
	return b.String()
}

// MappingDelimiter separates source and destination in FormatMappings output
const MappingDelimiter = "->"
