package syncer

import (
	"github.com/franz/djsync/internal/checkpoint"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/library"
)

// Change classifies a previewed track
type Change string

const (
	// ChangeNew is a _pruned track not yet synced to the mirror
	ChangeNew Change = "new"
	// ChangeTags is a synced track whose library tags differ from the mirror copy
	ChangeTags Change = "changed"
)

// PreviewTrack is one track a sync would touch
type PreviewTrack struct {
	Change    Change
	TrackID   string
	Title     string
	Artist    string
	Album     string
	DateAdded string
	Source    string
	Dest      string
}

// PreviewConfig holds the inputs of Preview. MirrorDir is the date-organized
// client mirror, LibraryDir holds the catalog's source files.
type PreviewConfig struct {
	MirrorDir    string
	LibraryDir   string
	Checkpoints  checkpoint.Store
	LocationRoot string
	Tags         library.TagReader
}

// Preview lists the tracks a sync would send without changing anything: new
// _pruned tracks past the checkpoint, then _pruned tracks whose library tags
// differ from their mirror copy. Mappings without a catalog entry are left out.
func Preview(cat *collection.Catalog, cfg *PreviewConfig) ([]PreviewTrack, error) {
	root := cfg.LocationRoot
	if root == "" {
		root = collection.DefaultRoot
	}

	newMappings, err := CreateSyncMappings(cat, cfg.MirrorDir, cfg.Checkpoints, root)
	if err != nil {
		return nil, err
	}

	changed, err := library.CompareTags(cfg.LibraryDir, cfg.MirrorDir, cfg.Tags)
	if err != nil {
		return nil, err
	}
	changed, err = library.FilterPathMappings(changed, cat, collection.NodePruned, root)
	if err != nil {
		return nil, err
	}

	byPath := tracksByPath(cat, root)
	var preview []PreviewTrack
	add := func(change Change, mappings []collection.FileMapping) {
		for _, m := range mappings {
			t, ok := byPath[m.Source]
			if !ok {
				continue
			}
			preview = append(preview, PreviewTrack{
				Change:    change,
				TrackID:   t.TrackID,
				Title:     t.Name,
				Artist:    t.Artist,
				Album:     t.Album,
				DateAdded: t.DateAdded,
				Source:    m.Source,
				Dest:      m.Dest,
			})
		}
	}
	add(ChangeNew, newMappings)
	add(ChangeTags, changed)
	return preview, nil
}

func tracksByPath(cat *collection.Catalog, root string) map[string]*collection.Track {
	byPath := make(map[string]*collection.Track, len(cat.Collection.Tracks))
	for _, t := range cat.Collection.Tracks {
		if !collection.HasRoot(root, t.Location) {
			continue
		}
		p, err := collection.LocationToPath(root, t.Location)
		if err != nil {
			continue
		}
		byPath[p] = t
	}
	return byPath
}
