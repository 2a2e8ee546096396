package library

import (
	"github.com/franz/djsync/internal/collection"
)

// RecordDynamic copies the tracks of cat into base and fills base's played
// and unplayed playlists from cat's mixtapes and pruned playlists. base is
// normally a fresh template; its playlists are replaced, not appended to.
func RecordDynamic(cat, base *collection.Catalog) error {
	played, err := PlayedTrackIDs(cat)
	if err != nil {
		return err
	}
	unplayed, err := UnplayedTrackIDs(cat)
	if err != nil {
		return err
	}

	playedNode, err := base.FindPlaylist(collection.NodePlayed)
	if err != nil {
		return err
	}
	unplayedNode, err := base.FindPlaylist(collection.NodeUnplayed)
	if err != nil {
		return err
	}

	base.Collection.Tracks = make([]*collection.Track, 0, len(cat.Collection.Tracks))
	for _, t := range cat.Collection.Tracks {
		base.Collection.Tracks = append(base.Collection.Tracks, t.Clone())
	}
	playedNode.SetKeys(played)
	unplayedNode.SetKeys(unplayed)
	base.UpdateCounts()
	return nil
}
