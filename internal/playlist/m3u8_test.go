package playlist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/util"
)

const playlistXML = `<?xml version="1.0" encoding="UTF-8"?>
<DJ_PLAYLISTS Version="1.0.0">
  <PRODUCT Name="rekordbox" Version="6.8.5" Company="AlphaTheta"/>
  <COLLECTION Entries="3">
    <TRACK TrackID="1" Name="Tainted Love" Artist="Gloria Jones" TotalTime="150" DateAdded="2022-04-24" Location="file://localhost/music/DJ/tainted%20love.aiff"/>
    <TRACK TrackID="2" Name="Untitled" Artist="" DateAdded="2023-01-02" Location="file://localhost/music/DJ/untitled.flac"/>
    <TRACK TrackID="3" Name="Elsewhere" Artist="Someone" TotalTime="200" DateAdded="2023-01-02" Location="file://otherhost/elsewhere.mp3"/>
  </COLLECTION>
  <PLAYLISTS>
    <NODE Type="0" Name="ROOT" Count="1">
      <NODE Name="dynamic" Type="0" Count="2">
        <NODE Name="unplayed" Type="1" KeyType="0" Entries="3">
          <TRACK Key="2"/>
          <TRACK Key="1"/>
          <TRACK Key="3"/>
        </NODE>
        <NODE Name="played" Type="1" KeyType="0" Entries="0"/>
      </NODE>
    </NODE>
  </PLAYLISTS>
</DJ_PLAYLISTS>
`

func loadCatalog(t *testing.T) *collection.Catalog {
	t.Helper()
	cat, err := collection.Parse(strings.NewReader(playlistXML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return cat
}

func TestFileName(t *testing.T) {
	if got := FileName("dynamic.unplayed"); got != "dynamic_unplayed.m3u8" {
		t.Errorf("FileName = %q", got)
	}
}

func TestBuild(t *testing.T) {
	entries, err := Build(loadCatalog(t), "dynamic.unplayed", Options{MediaRoot: "/media/music", Extension: ".mp3"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []Entry{
		{Seconds: -1, Title: "Untitled", Path: "/media/music/2023/01 january/02/untitled.mp3"},
		{Seconds: 150, Title: "Gloria Jones - Tainted Love", Path: "/media/music/2022/04 april/24/tainted love.mp3"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestBuildErrors(t *testing.T) {
	cat := loadCatalog(t)

	if _, err := Build(cat, "dynamic.missing", Options{}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("missing playlist error = %v", err)
	}
	if _, err := Build(cat, "dynamic", Options{}); err == nil {
		t.Error("expected error for a folder")
	}

	entries, err := Build(cat, "dynamic.played", Options{})
	if err != nil || len(entries) != 0 {
		t.Errorf("empty playlist = %v, %v", entries, err)
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, []Entry{
		{Seconds: 150, Title: "Gloria Jones - Tainted Love", Path: "/media/music/2022/04 april/24/tainted love.mp3"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "#EXTM3U\n#EXTINF:150,Gloria Jones - Tainted Love\n/media/music/2022/04 april/24/tainted love.mp3\n"
	if buf.String() != want {
		t.Errorf("Encode =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "playlists", "dynamic_unplayed.m3u8")
	if err := Write(path, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "#EXTM3U\n" {
		t.Errorf("content = %q", data)
	}
}
