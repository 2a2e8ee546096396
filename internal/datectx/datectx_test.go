package datectx

import (
	"errors"
	"testing"
	"time"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		date    string
		want    string
		wantErr bool
	}{
		{"2020-02-03", "2020/02 february/03", false},
		{"2024-12-31", "2024/12 december/31", false},
		{"1999-07-09", "1999/07 july/09", false},
		{"2024-13-01", "", true},
		{"not-a-date", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := BuildPath(tt.date)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidContext) {
					t.Fatalf("BuildPath(%q) error = %v, want ErrInvalidContext", tt.date, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildPath(%q) unexpected error: %v", tt.date, err)
			}
			if got != tt.want {
				t.Errorf("BuildPath(%q) = %q, want %q", tt.date, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantValue string
		wantIndex int
		wantOK    bool
	}{
		{"simple", "/data/tracks-output/2022/04 april/24/x.mp3", "2022/04 april/24", 3, true},
		{"directory only", "/data/tracks-output/2022/04 april/24", "2022/04 april/24", 3, true},
		{"relative", "2022/04 april/24/x.mp3", "2022/04 april/24", 0, true},
		{
			"later year ignored",
			"/Users/user/developer/test-private/data/tracks-output/2024/08 august/18/Paolo Mojo/1983/159678_1983_(Eric_Prydz_Remix).aiff",
			"2024/08 august/18", 7, true,
		},
		{"abbreviated month", "/data/2022/08 aug/18/x.mp3", "", 0, false},
		{"month name mismatch", "/data/2022/01 august/18/x.mp3", "", 0, false},
		{"invalid day", "/data/2022/02 february/30/x.mp3", "", 0, false},
		{"one digit day", "/data/2022/02 february/3/x.mp3", "", 0, false},
		{"year only", "/data/2022/x.mp3", "", 0, false},
		{"empty", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Value != tt.wantValue || got.Index != tt.wantIndex {
				t.Errorf("Extract(%q) = (%q, %d), want (%q, %d)", tt.path, got.Value, got.Index, tt.wantValue, tt.wantIndex)
			}
		})
	}
}

func TestExtractFromSkipsEarlierContext(t *testing.T) {
	p := "/in/2020/01 january/05/2021/03 march/07/file.mp3"

	first, ok := Extract(p)
	if !ok || first.Value != "2020/01 january/05" {
		t.Fatalf("Extract = %+v, %v", first, ok)
	}

	later, ok := ExtractFrom(p, first.Index+1)
	if !ok {
		t.Fatal("ExtractFrom found nothing")
	}
	if later.Value != "2021/03 march/07" || later.Index != 5 {
		t.Errorf("ExtractFrom = %+v, want 2021/03 march/07 at 5", later)
	}
}

func TestBuildPathRoundTrip(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Year() == 2023; d = d.AddDate(0, 0, 1) {
		ctx, err := BuildPath(d.Format(time.DateOnly))
		if err != nil {
			t.Fatalf("BuildPath(%s): %v", d.Format(time.DateOnly), err)
		}
		got, ok := Extract("/root/" + ctx + "/file.mp3")
		if !ok || got.Value != ctx {
			t.Fatalf("Extract round trip for %s = %+v, %v", ctx, got, ok)
		}
		ts, err := ToTimestamp(ctx)
		if err != nil {
			t.Fatalf("ToTimestamp(%q): %v", ctx, err)
		}
		if ts != d.Unix() {
			t.Fatalf("ToTimestamp(%q) = %d, want %d", ctx, ts, d.Unix())
		}
	}
}

func TestToTimestamp(t *testing.T) {
	ts, err := ToTimestamp("2024/01 january/02")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix(); ts != want {
		t.Errorf("ToTimestamp = %d, want %d", ts, want)
	}

	earlier, _ := ToTimestamp("2024/01 january/01")
	later, _ := ToTimestamp("2024/01 january/03")
	if !(earlier < ts && ts < later) {
		t.Errorf("timestamps not ordered: %d %d %d", earlier, ts, later)
	}

	for _, bad := range []string{"", "2024/01 january", "abcd/01 january/02", "2024/xx/02", "2024/02 february/30"} {
		if _, err := ToTimestamp(bad); !errors.Is(err, ErrInvalidContext) {
			t.Errorf("ToTimestamp(%q) error = %v, want ErrInvalidContext", bad, err)
		}
	}
}

func TestRelativeRoot(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/a/b/2022/04 april/24/f.mp3", "/a/b/./2022/04 april/24"},
		{"/dest/2023/01 january/01", "/dest/./2023/01 january/01"},
		{"out/2023/01 january/01/f.mp3", "out/./2023/01 january/01"},
		{"2020/02 february/03", "./2020/02 february/03"},
		{"2020/02 february/03/f.mp3", "./2020/02 february/03"},
	}
	for _, tt := range tests {
		got, err := RelativeRoot(tt.path)
		if err != nil {
			t.Fatalf("RelativeRoot(%q): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("RelativeRoot(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	if _, err := RelativeRoot("/no/context/here"); !errors.Is(err, ErrInvalidContext) {
		t.Errorf("RelativeRoot without context error = %v", err)
	}
}

func TestRebase(t *testing.T) {
	p := "/music/in/2020/02 february/03/Artist/file.mp3"
	c, ok := Extract(p)
	if !ok {
		t.Fatal("no context")
	}
	got := Rebase(p, "/mock/root", c)
	if want := "/mock/root/2020/02 february/03/Artist/file.mp3"; got != want {
		t.Errorf("Rebase = %q, want %q", got, want)
	}
}
