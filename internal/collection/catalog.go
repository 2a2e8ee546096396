package collection

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/djsync/internal/util"
)

//go:embed template.xml
var templateXML []byte

// Parse decodes a catalog document. Trailing garbage and truncated input are
// rejected rather than returning a partial tree.
func Parse(r io.Reader) (*Catalog, error) {
	dec := xml.NewDecoder(r)
	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		return nil, err
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("unexpected text after document element")
			}
		case xml.Comment, xml.ProcInst:
		default:
			return nil, fmt.Errorf("unexpected content after document element")
		}
	}
	return &cat, nil
}

// Load reads, decodes and validates the catalog at path
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	cat, err := Parse(f)
	if err != nil {
		util.ErrorLog("Unable to parse collection at '%s': %v", path, err)
		return nil, &ParseError{Path: path, Err: err}
	}
	cat.Path = path
	cat.ModTime = info.ModTime()

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Template returns a fresh empty catalog with the standard playlist skeleton
func Template() *Catalog {
	cat, err := Parse(bytes.NewReader(templateXML))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog template: %v", err))
	}
	return cat
}

// LoadOrTemplate loads path when it exists. Otherwise the catalog is read from
// templatePath, or from the embedded template when templatePath is empty.
// The returned catalog's Path is always path so Write targets it.
func LoadOrTemplate(path, templatePath string) (*Catalog, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	util.DebugLog("No catalog at %s, starting from template", path)
	if templatePath == "" {
		cat := Template()
		cat.Path = path
		return cat, nil
	}
	cat, err := Load(templatePath)
	if err != nil {
		return nil, err
	}
	cat.Path = path
	return cat, nil
}

// Root returns the ROOT folder of the playlist tree
func (c *Catalog) Root() (*Node, error) {
	return c.FindPlaylist(NodeRoot)
}

// FindPlaylist returns the first node named name in a pre-order walk of the
// playlist tree
func (c *Catalog) FindPlaylist(name string) (*Node, error) {
	var found *Node
	for _, top := range c.Playlists.Nodes {
		top.Walk(func(n *Node) bool {
			if n.Name == name {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found, nil
		}
	}
	return nil, &NotFoundError{Selector: name, Path: c.Path}
}

// FindPath resolves a dot-separated path of node names below ROOT, such as
// "dynamic.played"
func (c *Catalog) FindPath(selector string) (*Node, error) {
	node, err := c.Root()
	if err != nil {
		return nil, err
	}
	for _, name := range strings.Split(selector, ".") {
		var next *Node
		for _, child := range node.Nodes {
			if child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil, &NotFoundError{Selector: selector, Path: c.Path}
		}
		node = next
	}
	return node, nil
}

// TrackByID returns the track with the given TrackID
func (c *Catalog) TrackByID(id string) (*Track, bool) {
	for _, t := range c.Collection.Tracks {
		if t.TrackID == id {
			return t, true
		}
	}
	return nil, false
}

// TrackByLocation returns the track with the given encoded location
func (c *Catalog) TrackByLocation(location string) (*Track, bool) {
	for _, t := range c.Collection.Tracks {
		if t.Location == location {
			return t, true
		}
	}
	return nil, false
}

// Validate checks that TrackIDs and locations are unique and that every
// playlist reference resolves to a track
func (c *Catalog) Validate() error {
	var problems []string

	ids := make(map[string]struct{}, len(c.Collection.Tracks))
	locations := make(map[string]struct{}, len(c.Collection.Tracks))
	for _, t := range c.Collection.Tracks {
		if t.TrackID == "" {
			problems = append(problems, fmt.Sprintf("track without TrackID at %q", t.Location))
		} else if _, dup := ids[t.TrackID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate TrackID %s", t.TrackID))
		}
		ids[t.TrackID] = struct{}{}

		if _, dup := locations[t.Location]; dup && t.Location != "" {
			problems = append(problems, fmt.Sprintf("duplicate Location %q", t.Location))
		}
		locations[t.Location] = struct{}{}
	}

	for _, top := range c.Playlists.Nodes {
		top.Walk(func(n *Node) bool {
			for _, ref := range n.Tracks {
				if ref.Key == "" {
					problems = append(problems, fmt.Sprintf("playlist %q has a track without Key", n.Name))
					continue
				}
				if _, ok := ids[ref.Key]; !ok {
					problems = append(problems, fmt.Sprintf("playlist %q references missing track %s", n.Name, ref.Key))
				}
			}
			return true
		})
	}

	if len(problems) > 0 {
		return &IntegrityError{Path: c.Path, Problems: problems}
	}
	return nil
}

// UpdateCounts recomputes COLLECTION Entries, every playlist's Entries and
// every folder's Count from the actual children
func (c *Catalog) UpdateCounts() {
	c.Collection.Entries = strconv.Itoa(len(c.Collection.Tracks))
	for _, top := range c.Playlists.Nodes {
		top.Walk(func(n *Node) bool {
			if n.IsPlaylist() {
				n.Entries = strconv.Itoa(len(n.Tracks))
				n.Count = ""
			} else {
				n.Count = strconv.Itoa(len(n.Nodes))
				n.Entries = ""
			}
			return true
		})
	}
}

// Encode writes the document with an XML declaration after recomputing counts
func (c *Catalog) Encode(w io.Writer) error {
	c.UpdateCounts()
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Write stores the catalog at path via a temporary file and rename, so a
// failed write never leaves a truncated document behind
func (c *Catalog) Write(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".catalog-*.xml")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := c.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		c.ModTime = info.ModTime()
	}
	c.Path = path
	return nil
}
