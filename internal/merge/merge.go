// Package merge combines two snapshots of the same catalog
package merge

import (
	"fmt"
	"net/url"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/util"
)

// Result is a merged catalog plus what happened while building it
type Result struct {
	Catalog *collection.Catalog

	// Newer is whichever input won conflicts
	Newer *collection.Catalog

	// Reassigned maps old TrackIDs of the older input to the fresh IDs they
	// were given because the newer input already used them
	Reassigned map[string]string
}

// Merge combines primary and secondary. The input with the later ModTime is
// newer; on a tie primary wins. Tracks are matched by location and the newer
// input's attributes win. The pruned playlist is the union of both inputs'
// pruned tracks, matched by location and mapped to the merged TrackIDs. The
// playlist tree otherwise comes from the newer input. Neither input is
// modified.
func Merge(primary, secondary *collection.Catalog) (*Result, error) {
	newer, older := primary, secondary
	if secondary.ModTime.After(primary.ModTime) {
		newer, older = secondary, primary
	}

	newerPruned, err := newer.FindPlaylist(collection.NodePruned)
	if err != nil {
		return nil, err
	}
	olderPruned, err := older.FindPlaylist(collection.NodePruned)
	if err != nil {
		return nil, err
	}

	merged := &collection.Catalog{
		XMLName:    newer.XMLName,
		Version:    newer.Version,
		Product:    newer.Product,
		Collection: collection.Collection{},
		ModTime:    newer.ModTime,
	}
	for _, n := range newer.Playlists.Nodes {
		merged.Playlists.Nodes = append(merged.Playlists.Nodes, n.Clone())
	}

	newerByLocation := make(map[string]*collection.Track, len(newer.Collection.Tracks))
	taken := make(map[string]struct{}, len(newer.Collection.Tracks)+len(older.Collection.Tracks))
	for _, t := range newer.Collection.Tracks {
		newerByLocation[locationKey(t.Location)] = t
		taken[t.TrackID] = struct{}{}
	}

	// location -> merged TrackID
	mergedIDs := make(map[string]string, len(newer.Collection.Tracks)+len(older.Collection.Tracks))
	reassigned := make(map[string]string)
	tracks := make([]*collection.Track, 0, len(newer.Collection.Tracks)+len(older.Collection.Tracks))

	for _, t := range older.Collection.Tracks {
		key := locationKey(t.Location)
		if winner, ok := newerByLocation[key]; ok {
			tracks = append(tracks, winner.Clone())
			mergedIDs[key] = winner.TrackID
			continue
		}

		c := t.Clone()
		if _, collides := taken[c.TrackID]; collides {
			c.TrackID = collection.UniqueTrackID(func(id string) bool {
				_, used := taken[id]
				return used
			})
			reassigned[t.TrackID] = c.TrackID
			util.DebugLog("TrackID %s already used by newer catalog, reassigned %s to %s", t.TrackID, c.Location, c.TrackID)
		}
		taken[c.TrackID] = struct{}{}
		tracks = append(tracks, c)
		mergedIDs[key] = c.TrackID
	}
	for _, t := range newer.Collection.Tracks {
		key := locationKey(t.Location)
		if _, ok := mergedIDs[key]; ok {
			continue
		}
		tracks = append(tracks, t.Clone())
		mergedIDs[key] = t.TrackID
	}
	merged.Collection.Tracks = tracks

	locations := make([]string, 0, len(olderPruned.Tracks)+len(newerPruned.Tracks))
	olderLocations, err := prunedLocations(older, olderPruned)
	if err != nil {
		return nil, err
	}
	newerLocations, err := prunedLocations(newer, newerPruned)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, cap(locations))
	for _, loc := range append(olderLocations, newerLocations...) {
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		locations = append(locations, loc)
	}

	keys := make([]string, 0, len(locations))
	for _, loc := range locations {
		keys = append(keys, mergedIDs[loc])
	}
	mergedPruned, err := merged.FindPlaylist(collection.NodePruned)
	if err != nil {
		return nil, err
	}
	mergedPruned.SetKeys(keys)

	merged.UpdateCounts()
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("merged catalog: %w", err)
	}

	util.InfoLog("Merged %d + %d tracks into %d (%d pruned, %d IDs reassigned)",
		len(primary.Collection.Tracks), len(secondary.Collection.Tracks), len(tracks), len(keys), len(reassigned))

	return &Result{Catalog: merged, Newer: newer, Reassigned: reassigned}, nil
}

// prunedLocations resolves the pruned playlist of cat to location keys using
// cat's own TrackIDs
func prunedLocations(cat *collection.Catalog, pruned *collection.Node) ([]string, error) {
	idToLocation := make(map[string]string, len(cat.Collection.Tracks))
	for _, t := range cat.Collection.Tracks {
		idToLocation[t.TrackID] = locationKey(t.Location)
	}

	locations := make([]string, 0, len(pruned.Tracks))
	var missing []string
	for _, ref := range pruned.Tracks {
		loc, ok := idToLocation[ref.Key]
		if !ok {
			missing = append(missing, fmt.Sprintf("playlist %q references missing track %s", pruned.Name, ref.Key))
			continue
		}
		locations = append(locations, loc)
	}
	if len(missing) > 0 {
		return nil, &collection.IntegrityError{Path: cat.Path, Problems: missing}
	}
	return locations, nil
}

// locationKey compares locations by their decoded form so that differences in
// percent-encoding case do not split one file into two tracks
func locationKey(location string) string {
	if decoded, err := url.PathUnescape(location); err == nil {
		return decoded
	}
	return location
}
