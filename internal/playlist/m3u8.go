// Package playlist exports catalog playlists as extended M3U files whose
// entries point at the date-organized copies on the media server
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/library"
	"github.com/franz/djsync/internal/util"
)

// Entry is one line pair of an M3U8 file
type Entry struct {
	Seconds int // -1 when unknown
	Title   string
	Path    string
}

// Options controls Build
type Options struct {
	// LocationRoot is the catalog's location prefix
	LocationRoot string
	// MediaRoot is the music directory as the media server sees it
	MediaRoot string
	// Extension replaces each file's extension when set, matching the
	// transcoded copies
	Extension string
}

// FileName returns the file name for a dot-path playlist:
// "dynamic.unplayed" -> "dynamic_unplayed.m3u8"
func FileName(dotPath string) string {
	return strings.ReplaceAll(dotPath, ".", "_") + ".m3u8"
}

// Build resolves the playlist at dotPath and returns its entries in playlist
// order
func Build(cat *collection.Catalog, dotPath string, opts Options) ([]Entry, error) {
	node, err := cat.FindPath(dotPath)
	if err != nil {
		return nil, err
	}
	if !node.IsPlaylist() {
		return nil, fmt.Errorf("'%s' is a folder, not a playlist", dotPath)
	}

	ids := node.Keys()
	if len(ids) == 0 {
		return nil, nil
	}

	root := opts.LocationRoot
	if root == "" {
		root = collection.DefaultRoot
	}

	mappings, err := library.GenerateDatePaths(cat, opts.MediaRoot, library.DatePathOptions{
		LocationRoot: root,
		TrackIDs:     ids,
	})
	if err != nil {
		return nil, err
	}
	dests := make(map[string]string, len(mappings))
	for _, m := range mappings {
		dests[m.Source] = m.Dest
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		track, ok := cat.TrackByID(id)
		if !ok {
			return nil, &collection.IntegrityError{
				Path:     cat.Path,
				Problems: []string{fmt.Sprintf("playlist '%s' references missing track %s", dotPath, id)},
			}
		}
		source, err := collection.LocationToPath(root, track.Location)
		if err != nil {
			return nil, err
		}
		dest, ok := dests[source]
		if !ok {
			util.DebugLog("Skip track outside library root: %s", source)
			continue
		}
		if opts.Extension != "" {
			dest = strings.TrimSuffix(dest, path.Ext(dest)) + opts.Extension
		}
		entries = append(entries, Entry{
			Seconds: seconds(track.TotalTime),
			Title:   displayTitle(track),
			Path:    dest,
		})
	}
	return entries, nil
}

func seconds(totalTime string) int {
	n, err := strconv.Atoi(strings.TrimSpace(totalTime))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func displayTitle(t *collection.Track) string {
	if t.Artist == "" {
		return t.Name
	}
	return t.Artist + " - " + t.Name
}

// Encode writes entries in extended M3U format
func Encode(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#EXTM3U")
	for _, e := range entries {
		fmt.Fprintf(bw, "#EXTINF:%d,%s\n", e.Seconds, e.Title)
		fmt.Fprintln(bw, e.Path)
	}
	return bw.Flush()
}

// Write encodes entries to path, creating parent directories
func Write(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create playlist directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	if err := Encode(f, entries); err != nil {
		f.Close()
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	return f.Close()
}
