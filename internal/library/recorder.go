package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/report"
	"github.com/franz/djsync/internal/util"
)

// AudioExtensions lists the file types that are cataloged
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aif":  true,
	".aiff": true,
	".flac": true,
}

// Tags holds the metadata copied from an audio file into its catalog entry
type Tags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Key    string
}

// TagReader reads Tags from an audio file
type TagReader interface {
	ReadTags(path string) (*Tags, error)
}

// FileTagReader reads ID3, MP4, FLAC and Ogg tags
type FileTagReader struct{}

// raw tag names that carry the musical key across formats
var keyFrames = []string{"TKEY", "TKE", "initialkey", "INITIALKEY", "----:com.apple.iTunes:initialkey"}

// ReadTags implements TagReader
func (FileTagReader) ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	tags := &Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Genre:  m.Genre(),
	}
	if raw := m.Raw(); raw != nil {
		for _, name := range keyFrames {
			if v, ok := raw[name].(string); ok && v != "" {
				tags.Key = strings.TrimSpace(v)
				break
			}
		}
	}
	return tags, nil
}

// RecorderConfig holds Recorder configuration
type RecorderConfig struct {
	LocationRoot string
	Tags         TagReader
	Logger       *report.EventLogger
	Now          func() time.Time
}

// Recorder adds the audio files of a directory tree to a catalog
type Recorder struct {
	root   string
	tags   TagReader
	logger *report.EventLogger
	now    func() time.Time
}

// RecordResult counts what a Record call changed
type RecordResult struct {
	Added   int
	Updated int
	Skipped int
}

// NewRecorder creates a Recorder, filling unset fields with defaults
func NewRecorder(cfg *RecorderConfig) *Recorder {
	r := &Recorder{
		root:   cfg.LocationRoot,
		tags:   cfg.Tags,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if r.root == "" {
		r.root = collection.DefaultRoot
	}
	if r.tags == nil {
		r.tags = FileTagReader{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Record walks sourceDir and updates cat in place. Known locations keep their
// TrackID and DateAdded while their tag attributes are refreshed. New files
// get a fresh TrackID, today's date and a reference in the pruned playlist.
// Files whose tags cannot be read are logged, counted and skipped.
func (r *Recorder) Record(ctx context.Context, sourceDir string, cat *collection.Catalog) (*RecordResult, error) {
	pruned, err := cat.FindPlaylist(collection.NodePruned)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	paths, err := collectAudioFiles(absDir)
	if err != nil {
		return nil, err
	}

	byLocation := make(map[string]*collection.Track, len(cat.Collection.Tracks))
	ids := make(map[string]struct{}, len(cat.Collection.Tracks))
	for _, t := range cat.Collection.Tracks {
		byLocation[t.Location] = t
		ids[t.TrackID] = struct{}{}
	}

	today := r.now().Format(time.DateOnly)
	result := &RecordResult{}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tags, err := r.tags.ReadTags(p)
		if err != nil {
			util.WarnLog("Skipping %s: %v", p, err)
			r.logger.LogSkip(p, err.Error())
			result.Skipped++
			continue
		}

		location := collection.EncodeLocation(r.root, p)
		if existing, ok := byLocation[location]; ok {
			applyTags(existing, tags)
			if existing.DateAdded == "" {
				util.WarnLog("No date present for existing track: '%s', using '%s'", p, today)
				existing.DateAdded = today
			}
			result.Updated++
			r.logger.LogRecord(p, "updated", existing.TrackID)
			continue
		}

		id := collection.UniqueTrackID(func(candidate string) bool {
			_, taken := ids[candidate]
			return taken
		})
		ids[id] = struct{}{}

		track := &collection.Track{TrackID: id, Location: location, DateAdded: today}
		applyTags(track, tags)
		cat.Collection.Tracks = append(cat.Collection.Tracks, track)
		byLocation[location] = track
		pruned.Tracks = append(pruned.Tracks, collection.TrackRef{Key: id})

		result.Added++
		r.logger.LogRecord(p, "added", id)
	}

	cat.UpdateCounts()
	util.InfoLog("Collection updated: %d new tracks, %d updated tracks, %d skipped", result.Added, result.Updated, result.Skipped)
	return result, nil
}

func applyTags(t *collection.Track, tags *Tags) {
	t.Name = tags.Title
	t.Artist = tags.Artist
	t.Album = tags.Album
	t.Genre = tags.Genre
	t.Tonality = tags.Key
}

// collectAudioFiles returns audio files below dir in lexical order, skipping
// hidden files and directories
func collectAudioFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if AudioExtensions[strings.ToLower(filepath.Ext(p))] {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}
