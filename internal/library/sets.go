// Package library derives playlist membership and file mappings from a catalog
package library

import (
	"fmt"

	"github.com/franz/djsync/internal/collection"
)

// PlayedTrackIDs returns every track referenced anywhere under the mixtapes
// folder, deduplicated in first-seen order
func PlayedTrackIDs(cat *collection.Catalog) ([]string, error) {
	mixtapes, err := cat.FindPlaylist(collection.NodeMixtapes)
	if err != nil {
		return nil, err
	}

	played := make([]string, 0)
	seen := make(map[string]struct{})
	mixtapes.Walk(func(n *collection.Node) bool {
		for _, ref := range n.Tracks {
			if _, ok := seen[ref.Key]; ok {
				continue
			}
			seen[ref.Key] = struct{}{}
			played = append(played, ref.Key)
		}
		return true
	})
	return played, nil
}

// UnplayedTrackIDs returns the pruned tracks that are not played, in pruned order
func UnplayedTrackIDs(cat *collection.Catalog) ([]string, error) {
	pruned, err := cat.FindPlaylist(collection.NodePruned)
	if err != nil {
		return nil, err
	}
	played, err := PlayedTrackIDs(cat)
	if err != nil {
		return nil, err
	}
	playedSet := toSet(played)

	unplayed := make([]string, 0)
	for _, ref := range pruned.Tracks {
		if ref.Key == "" {
			return nil, &collection.IntegrityError{
				Path:     cat.Path,
				Problems: []string{fmt.Sprintf("playlist %q has a track without Key", pruned.Name)},
			}
		}
		if _, ok := playedSet[ref.Key]; !ok {
			unplayed = append(unplayed, ref.Key)
		}
	}
	return unplayed, nil
}

// PlaylistTrackIDs returns the track IDs of the named playlist in order
func PlaylistTrackIDs(cat *collection.Catalog, name string) ([]string, error) {
	node, err := cat.FindPlaylist(name)
	if err != nil {
		return nil, err
	}
	return node.Keys(), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
