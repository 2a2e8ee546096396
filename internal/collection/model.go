// Package collection reads and writes the Rekordbox-style XML catalog that
// holds every track in the library and the playlists that reference them.
package collection

import (
	"encoding/xml"
	"time"
)

// Well-known playlist and folder names
const (
	NodeRoot     = "ROOT"
	NodePruned   = "_pruned"
	NodeMixtapes = "mixtapes"
	NodeArchive  = "archive"
	NodePlayed   = "played"
	NodeUnplayed = "unplayed"
	NodeDynamic  = "dynamic"
)

// Node types as stored in the Type attribute
const (
	TypeFolder   = "0"
	TypePlaylist = "1"
)

// Catalog is the DJ_PLAYLISTS document
type Catalog struct {
	XMLName    xml.Name   `xml:"DJ_PLAYLISTS"`
	Version    string     `xml:"Version,attr"`
	Product    Product    `xml:"PRODUCT"`
	Collection Collection `xml:"COLLECTION"`
	Playlists  Playlists  `xml:"PLAYLISTS"`

	// Path and ModTime describe the file the catalog was loaded from.
	// Both are zero for catalogs built from the embedded template.
	Path    string    `xml:"-"`
	ModTime time.Time `xml:"-"`
}

// Product identifies the application that exported the document
type Product struct {
	Name    string `xml:"Name,attr"`
	Version string `xml:"Version,attr"`
	Company string `xml:"Company,attr"`
}

// Collection is the flat set of tracks
type Collection struct {
	Entries string   `xml:"Entries,attr"`
	Tracks  []*Track `xml:"TRACK"`
}

// Playlists holds the top-level playlist tree, normally a single ROOT folder
type Playlists struct {
	Nodes []*Node `xml:"NODE"`
}

// Track is a cataloged audio file. Attributes without a named field and
// child elements such as TEMPO and POSITION_MARK are carried through
// unchanged.
type Track struct {
	TrackID    string `xml:"TrackID,attr"`
	Name       string `xml:"Name,attr"`
	Artist     string `xml:"Artist,attr"`
	Album      string `xml:"Album,attr"`
	Genre      string `xml:"Genre,attr"`
	Tonality   string `xml:"Tonality,attr"`
	TotalTime  string `xml:"TotalTime,attr,omitempty"`
	AverageBpm string `xml:"AverageBpm,attr,omitempty"`
	DateAdded  string `xml:"DateAdded,attr"`
	Location   string `xml:"Location,attr"`

	Extra []xml.Attr `xml:",any,attr"`
	Inner string     `xml:",innerxml"`
}

// Node is a folder (Type 0) or playlist (Type 1) in the playlist tree
type Node struct {
	Name    string     `xml:"Name,attr"`
	Type    string     `xml:"Type,attr"`
	KeyType string     `xml:"KeyType,attr,omitempty"`
	Entries string     `xml:"Entries,attr,omitempty"`
	Count   string     `xml:"Count,attr,omitempty"`
	Nodes   []*Node    `xml:"NODE"`
	Tracks  []TrackRef `xml:"TRACK"`
}

// TrackRef is a playlist entry pointing at a Track by its TrackID
type TrackRef struct {
	Key string `xml:"Key,attr"`
}

// FileMapping pairs a source file with its destination
type FileMapping struct {
	Source string
	Dest   string
}

// IsPlaylist reports whether n holds track references
func (n *Node) IsPlaylist() bool {
	return n.Type == TypePlaylist
}

// Keys returns the track IDs referenced by a playlist in order
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Tracks))
	for _, ref := range n.Tracks {
		keys = append(keys, ref.Key)
	}
	return keys
}

// SetKeys replaces the playlist contents
func (n *Node) SetKeys(keys []string) {
	n.Tracks = make([]TrackRef, 0, len(keys))
	for _, k := range keys {
		n.Tracks = append(n.Tracks, TrackRef{Key: k})
	}
}

// Walk visits n and every descendant in pre-order until fn returns false
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Nodes {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the track
func (t *Track) Clone() *Track {
	c := *t
	if t.Extra != nil {
		c.Extra = append([]xml.Attr(nil), t.Extra...)
	}
	return &c
}

// Clone returns a deep copy of the node tree
func (n *Node) Clone() *Node {
	c := *n
	c.Tracks = append([]TrackRef(nil), n.Tracks...)
	c.Nodes = make([]*Node, 0, len(n.Nodes))
	for _, child := range n.Nodes {
		c.Nodes = append(c.Nodes, child.Clone())
	}
	return &c
}
