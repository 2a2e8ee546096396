package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/djsync/internal/collection"
)

type fakeTags map[string]*Tags

func (f fakeTags) ReadTags(path string) (*Tags, error) {
	if t, ok := f[filepath.Base(path)]; ok {
		return t, nil
	}
	return nil, errors.New("failed to read tags: no tags found")
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
}

func TestRecorderAddsNewTracks(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.mp3"))
	touch(t, filepath.Join(dir, "sub", "b.flac"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".hidden.mp3"))

	tags := fakeTags{
		"a.mp3":  {Title: "A", Artist: "Artist A", Album: "Album", Genre: "House", Key: "8A"},
		"b.flac": {Title: "B", Artist: "Artist B"},
	}
	r := NewRecorder(&RecorderConfig{Tags: tags, Now: fixedNow})

	cat := collection.Template()
	result, err := r.Record(context.Background(), dir, cat)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if result.Added != 2 || result.Updated != 0 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 2 added", result)
	}
	if cat.Collection.Entries != "2" {
		t.Errorf("COLLECTION Entries = %s, want 2", cat.Collection.Entries)
	}

	pruned, _ := cat.FindPlaylist(collection.NodePruned)
	if len(pruned.Tracks) != 2 || pruned.Entries != "2" {
		t.Errorf("pruned has %d refs, Entries %s", len(pruned.Tracks), pruned.Entries)
	}

	first := cat.Collection.Tracks[0]
	wantLocation := collection.EncodeLocation(collection.DefaultRoot, filepath.Join(dir, "a.mp3"))
	if first.Location != wantLocation {
		t.Errorf("Location = %q, want %q", first.Location, wantLocation)
	}
	if first.DateAdded != "2025-05-20" || first.Tonality != "8A" || first.Genre != "House" {
		t.Errorf("unexpected track attributes: %+v", first)
	}
	if len(first.TrackID) != 9 {
		t.Errorf("TrackID = %q, want 9 digits", first.TrackID)
	}
	if err := cat.Validate(); err != nil {
		t.Errorf("catalog does not validate: %v", err)
	}
}

func TestRecorderPreservesIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	touch(t, path)

	cat := collection.Template()
	cat.Collection.Tracks = []*collection.Track{{
		TrackID:   "123456789",
		Name:      "Old Title",
		DateAdded: "2019-01-01",
		Location:  collection.EncodeLocation(collection.DefaultRoot, path),
	}}

	r := NewRecorder(&RecorderConfig{
		Tags: fakeTags{"a.mp3": {Title: "New Title", Artist: "Someone"}},
		Now:  fixedNow,
	})
	result, err := r.Record(context.Background(), dir, cat)
	if err != nil {
		t.Fatal(err)
	}

	if result.Added != 0 || result.Updated != 1 {
		t.Errorf("result = %+v, want 1 updated", result)
	}
	track := cat.Collection.Tracks[0]
	if track.TrackID != "123456789" || track.DateAdded != "2019-01-01" {
		t.Errorf("identity changed: %+v", track)
	}
	if track.Name != "New Title" || track.Artist != "Someone" {
		t.Errorf("tags not refreshed: %+v", track)
	}
}

func TestRecorderFillsMissingDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	touch(t, path)

	cat := collection.Template()
	cat.Collection.Tracks = []*collection.Track{{
		TrackID:  "1",
		Location: collection.EncodeLocation(collection.DefaultRoot, path),
	}}

	r := NewRecorder(&RecorderConfig{Tags: fakeTags{"a.mp3": {}}, Now: fixedNow})
	if _, err := r.Record(context.Background(), dir, cat); err != nil {
		t.Fatal(err)
	}
	if got := cat.Collection.Tracks[0].DateAdded; got != "2025-05-20" {
		t.Errorf("DateAdded = %q, want today", got)
	}
}

func TestRecorderSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "good.mp3"))
	touch(t, filepath.Join(dir, "broken.wav"))

	r := NewRecorder(&RecorderConfig{Tags: fakeTags{"good.mp3": {Title: "Good"}}, Now: fixedNow})
	cat := collection.Template()
	result, err := r.Record(context.Background(), dir, cat)
	if err != nil {
		t.Fatalf("unreadable file should not fail the run: %v", err)
	}
	if result.Added != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 added and 1 skipped", result)
	}
}

func TestRecorderCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.mp3"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecorder(&RecorderConfig{Tags: fakeTags{"a.mp3": {}}})
	if _, err := r.Record(ctx, dir, collection.Template()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRecorderRequiresPruned(t *testing.T) {
	cat := collection.Template()
	root, _ := cat.Root()
	root.Nodes = nil

	r := NewRecorder(&RecorderConfig{Tags: fakeTags{}})
	_, err := r.Record(context.Background(), t.TempDir(), cat)
	var nf *collection.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("error = %v, want *NotFoundError", err)
	}
}
