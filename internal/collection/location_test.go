package collection

import "testing"

func TestEncodeLocation(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/Users/user/Music/DJ/one.aiff", "file://localhost/Users/user/Music/DJ/one.aiff"},
		{"/music/two (mix).aiff", "file://localhost/music/two%20(mix).aiff"},
		{"/music/a&b #1.mp3", "file://localhost/music/a%26b%20%231.mp3"},
		{"/music/花.aiff", "file://localhost/music/%E8%8A%B1.aiff"},
	}
	for _, tt := range tests {
		if got := EncodeLocation(DefaultRoot, tt.path); got != tt.want {
			t.Errorf("EncodeLocation(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLocationToPath(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"file://localhost/Users/user/Music/DJ/one.aiff", "/Users/user/Music/DJ/one.aiff"},
		{"file://localhost/Volumes/USR-MUSIC/haircuts%20for%20men%20-%20%e8%8a%b1.aiff", "/Volumes/USR-MUSIC/haircuts for men - 花.aiff"},
		{"relative/path.mp3", "/relative/path.mp3"},
	}
	for _, tt := range tests {
		got, err := LocationToPath(DefaultRoot, tt.location)
		if err != nil {
			t.Fatalf("LocationToPath(%q): %v", tt.location, err)
		}
		if got != tt.want {
			t.Errorf("LocationToPath(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}

	if _, err := LocationToPath(DefaultRoot, "file://localhost/bad%zz"); err == nil {
		t.Error("expected error for invalid escape")
	}
}

func TestLocationRoundTrip(t *testing.T) {
	paths := []string{
		"/a/b/c.mp3",
		"/Music/Artist - Title (Extended Mix) [Label].aiff",
		"/Music/100% pure?.wav",
		"/Music/naïve café.flac",
	}
	for _, p := range paths {
		got, err := LocationToPath(DefaultRoot, EncodeLocation(DefaultRoot, p))
		if err != nil {
			t.Fatalf("round trip %q: %v", p, err)
		}
		if got != p {
			t.Errorf("round trip %q = %q", p, got)
		}
	}
}
