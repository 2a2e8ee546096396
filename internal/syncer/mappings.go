package syncer

import (
	"github.com/franz/djsync/internal/checkpoint"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/library"
	"github.com/franz/djsync/internal/util"
)

// CreateSyncMappings maps every track of the _pruned playlist to its date
// path under outputDir and drops the date contexts the checkpoint already
// covers
func CreateSyncMappings(cat *collection.Catalog, outputDir string, store checkpoint.Store, locationRoot string) ([]collection.FileMapping, error) {
	ids, err := library.PlaylistTrackIDs(cat, collection.NodePruned)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		util.InfoLog("Playlist '%s' is empty, nothing to sync", collection.NodePruned)
		return nil, nil
	}

	mappings, err := library.GenerateDatePaths(cat, outputDir, library.DatePathOptions{
		LocationRoot: locationRoot,
		TrackIDs:     ids,
	})
	if err != nil {
		return nil, err
	}
	return FilterProcessed(mappings, store)
}

// FilterProcessed keeps the mappings whose destination date context is newer
// than the checkpoint
func FilterProcessed(mappings []collection.FileMapping, store checkpoint.Store) ([]collection.FileMapping, error) {
	cp, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return mappings, nil
	}

	filtered := make([]collection.FileMapping, 0, len(mappings))
	for _, m := range mappings {
		c, ok := datectx.Extract(m.Dest)
		if !ok {
			return nil, &ValidationError{Path: m.Dest, Reason: "no date context in destination"}
		}
		ts, err := datectx.ToTimestamp(c.Value)
		if err != nil {
			return nil, &ValidationError{Path: m.Dest, Reason: err.Error()}
		}
		if ts <= cp.Timestamp {
			continue
		}
		filtered = append(filtered, m)
	}

	if dropped := len(mappings) - len(filtered); dropped > 0 {
		util.InfoLog("Skipping %d mappings at or before checkpoint '%s'", dropped, cp.Context)
	}
	return filtered, nil
}
