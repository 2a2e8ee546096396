package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/franz/djsync/internal/collection"
)

var (
	t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func track(id, file, title string) *collection.Track {
	return &collection.Track{
		TrackID:   id,
		Name:      title,
		DateAdded: "2024-01-02",
		Location:  collection.EncodeLocation(collection.DefaultRoot, "/music/"+file),
	}
}

func catalog(t *testing.T, modTime time.Time, tracks []*collection.Track, pruned ...string) *collection.Catalog {
	t.Helper()
	cat := collection.Template()
	cat.ModTime = modTime
	cat.Collection.Tracks = tracks
	p, err := cat.FindPlaylist(collection.NodePruned)
	if err != nil {
		t.Fatal(err)
	}
	p.SetKeys(pruned)
	cat.UpdateCounts()
	return cat
}

// byLocation indexes a catalog's tracks by location for comparisons that must
// not depend on TrackIDs
func byLocation(cat *collection.Catalog) map[string]*collection.Track {
	m := make(map[string]*collection.Track)
	for _, t := range cat.Collection.Tracks {
		m[t.Location] = t
	}
	return m
}

func prunedTrackLocations(t *testing.T, cat *collection.Catalog) []string {
	t.Helper()
	p, err := cat.FindPlaylist(collection.NodePruned)
	if err != nil {
		t.Fatal(err)
	}
	var locs []string
	for _, key := range p.Keys() {
		tr, ok := cat.TrackByID(key)
		if !ok {
			t.Fatalf("pruned references missing track %s", key)
		}
		locs = append(locs, tr.Location)
	}
	return locs
}

func TestMergeIdempotent(t *testing.T) {
	a := catalog(t, t0, []*collection.Track{
		track("1", "a.mp3", "A"),
		track("2", "b.mp3", "B"),
		track("3", "c.mp3", "C"),
	}, "1", "3")

	res, err := Merge(a, a)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	got, want := byLocation(res.Catalog), byLocation(a)
	if len(got) != len(want) {
		t.Fatalf("track count = %d, want %d", len(got), len(want))
	}
	for loc, wt := range want {
		gt, ok := got[loc]
		if !ok || gt.Name != wt.Name || gt.TrackID != wt.TrackID {
			t.Errorf("track at %s = %+v, want %+v", loc, gt, wt)
		}
	}

	gp, wp := prunedTrackLocations(t, res.Catalog), prunedTrackLocations(t, a)
	if len(gp) != len(wp) || gp[0] != wp[0] || gp[1] != wp[1] {
		t.Errorf("pruned = %v, want %v", gp, wp)
	}
	if len(res.Reassigned) != 0 {
		t.Errorf("unexpected reassignments: %v", res.Reassigned)
	}
}

func TestMergeDisjoint(t *testing.T) {
	a := catalog(t, t0, []*collection.Track{
		track("1", "a.mp3", "A"),
		track("2", "b.mp3", "B"),
	}, "1")
	b := catalog(t, t1, []*collection.Track{
		track("10", "x.mp3", "X"),
		track("11", "y.mp3", "Y"),
		track("12", "z.mp3", "Z"),
	}, "11", "12")

	res, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(res.Catalog.Collection.Tracks); got != 5 {
		t.Errorf("track count = %d, want 5", got)
	}
	if res.Catalog.Collection.Entries != "5" {
		t.Errorf("Entries = %s, want 5", res.Catalog.Collection.Entries)
	}
	if got := prunedTrackLocations(t, res.Catalog); len(got) != 3 {
		t.Errorf("pruned = %v, want 3 entries", got)
	}
}

func TestMergeNewerWins(t *testing.T) {
	tests := []struct {
		name       string
		primaryMod time.Time
		secondMod  time.Time
		wantTitle  string
	}{
		{"secondary newer", t0, t1, "from secondary"},
		{"primary newer", t1, t0, "from primary"},
		{"tie prefers primary", t0, t0, "from primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := catalog(t, tt.primaryMod, []*collection.Track{track("1", "a.mp3", "from primary")}, "1")
			secondary := catalog(t, tt.secondMod, []*collection.Track{track("7", "a.mp3", "from secondary")}, "7")

			res, err := Merge(primary, secondary)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Catalog.Collection.Tracks) != 1 {
				t.Fatalf("overlapping location produced %d tracks", len(res.Catalog.Collection.Tracks))
			}
			if got := res.Catalog.Collection.Tracks[0].Name; got != tt.wantTitle {
				t.Errorf("title = %q, want %q", got, tt.wantTitle)
			}
			if got := prunedTrackLocations(t, res.Catalog); len(got) != 1 {
				t.Errorf("pruned = %v, want one entry", got)
			}
		})
	}
}

func TestMergeTrackIDCollision(t *testing.T) {
	older := catalog(t, t0, []*collection.Track{
		track("1", "old-only.mp3", "Old"),
		track("2", "shared.mp3", "Shared old"),
	}, "1", "2")
	newer := catalog(t, t1, []*collection.Track{
		track("2", "new-only.mp3", "New"),
		track("1", "shared.mp3", "Shared new"),
	}, "2")

	res, err := Merge(older, newer)
	if err != nil {
		t.Fatal(err)
	}

	tracks := byLocation(res.Catalog)
	if len(tracks) != 3 {
		t.Fatalf("track count = %d, want 3", len(tracks))
	}

	oldOnly := tracks[collection.EncodeLocation(collection.DefaultRoot, "/music/old-only.mp3")]
	if oldOnly.TrackID == "1" || oldOnly.TrackID == "2" || len(oldOnly.TrackID) != 9 {
		t.Errorf("colliding TrackID not reassigned: %q", oldOnly.TrackID)
	}
	if res.Reassigned["1"] != oldOnly.TrackID {
		t.Errorf("Reassigned = %v", res.Reassigned)
	}

	shared := tracks[collection.EncodeLocation(collection.DefaultRoot, "/music/shared.mp3")]
	if shared.TrackID != "1" || shared.Name != "Shared new" {
		t.Errorf("shared track = %+v, want newer version", shared)
	}

	// pruned: old-only and shared from older, new-only from newer
	want := []string{
		collection.EncodeLocation(collection.DefaultRoot, "/music/old-only.mp3"),
		collection.EncodeLocation(collection.DefaultRoot, "/music/shared.mp3"),
		collection.EncodeLocation(collection.DefaultRoot, "/music/new-only.mp3"),
	}
	got := prunedTrackLocations(t, res.Catalog)
	if len(got) != len(want) {
		t.Fatalf("pruned = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pruned[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if err := res.Catalog.Validate(); err != nil {
		t.Errorf("merged catalog invalid: %v", err)
	}
}

func TestMergeEncodingCaseInsensitive(t *testing.T) {
	a := catalog(t, t0, []*collection.Track{{
		TrackID: "1", Name: "lower", Location: "file://localhost/music/%e8%8a%b1.aiff",
	}}, "1")
	b := catalog(t, t1, []*collection.Track{{
		TrackID: "2", Name: "upper", Location: "file://localhost/music/%E8%8A%B1.aiff",
	}}, "2")

	res, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Catalog.Collection.Tracks) != 1 || res.Catalog.Collection.Tracks[0].Name != "upper" {
		t.Errorf("tracks = %+v, want single newer track", res.Catalog.Collection.Tracks)
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	a := catalog(t, t0, []*collection.Track{track("1", "a.mp3", "A")}, "1")
	b := catalog(t, t1, []*collection.Track{track("1", "b.mp3", "B")}, "1")

	res, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	res.Catalog.Collection.Tracks[0].Name = "changed"

	if a.Collection.Tracks[0].TrackID != "1" || a.Collection.Tracks[0].Name != "A" {
		t.Errorf("primary modified: %+v", a.Collection.Tracks[0])
	}
	if b.Collection.Tracks[0].Name != "B" {
		t.Errorf("secondary modified: %+v", b.Collection.Tracks[0])
	}
	p, _ := b.FindPlaylist(collection.NodePruned)
	if len(p.Tracks) != 1 {
		t.Errorf("secondary pruned modified: %v", p.Keys())
	}
}

func TestMergeDanglingPruned(t *testing.T) {
	a := catalog(t, t0, []*collection.Track{track("1", "a.mp3", "A")}, "1", "99")
	b := catalog(t, t1, nil)

	_, err := Merge(a, b)
	var ierr *collection.IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("error = %v, want *IntegrityError", err)
	}
}

func TestMergeMissingPruned(t *testing.T) {
	a := catalog(t, t0, nil)
	b := catalog(t, t1, nil)
	root, _ := b.Root()
	root.Nodes = nil

	_, err := Merge(a, b)
	var nf *collection.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}
