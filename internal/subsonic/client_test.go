package subsonic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franz/djsync/internal/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient(Config{
		BaseURL:  server.URL,
		Username: "dj",
		Password: "secret",
		Retry:    &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
	})
	c.salt = func() string { return "c19b2d" }
	return c
}

func TestStartScanRequest(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(`{"subsonic-response":{"status":"ok","version":"1.16.1","scanStatus":{"scanning":true,"count":0}}}`))
	})

	if err := c.StartScan(context.Background(), true); err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	if got.URL.Path != "/rest/startScan" {
		t.Errorf("path = %s", got.URL.Path)
	}
	q := got.URL.Query()
	sum := md5.Sum([]byte("secret" + "c19b2d"))
	want := map[string]string{
		"fullScan": "true",
		"u":        "dj",
		"t":        hex.EncodeToString(sum[:]),
		"s":        "c19b2d",
		"v":        APIVersion,
		"c":        DefaultClientID,
		"f":        "json",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
	if q.Get("p") != "" {
		t.Error("password must not be sent in clear")
	}
}

func TestScanStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"bool true", `{"subsonic-response":{"status":"ok","scanStatus":{"scanning":true,"count":5}}}`, true},
		{"bool false", `{"subsonic-response":{"status":"ok","scanStatus":{"scanning":false,"count":5}}}`, false},
		{"string false", `{"subsonic-response":{"status":"ok","scanStatus":{"scanning":"false"}}}`, false},
		{"string true", `{"subsonic-response":{"status":"ok","scanStatus":{"scanning":"true"}}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/rest/getScanStatus" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			})
			got, err := c.ScanStatus(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ScanStatus = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanStatusMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subsonic-response":{"status":"ok"}}`))
	})
	if _, err := c.ScanStatus(context.Background()); err == nil {
		t.Fatal("expected error when scanStatus is absent")
	}
}

func TestAPIError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"subsonic-response":{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}}`))
	})

	err := c.Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 40 {
		t.Errorf("Code = %d, want 40", apiErr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("API errors should not be retried, got %d calls", calls.Load())
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"subsonic-response":{"status":"ok","scanStatus":{"scanning":false}}}`))
	})

	scanning, err := c.ScanStatus(context.Background())
	if err != nil {
		t.Fatalf("ScanStatus: %v", err)
	}
	if scanning {
		t.Error("scanning = true, want false")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	})

	if err := c.StartScan(context.Background(), false); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"pi.local", 4533, "http://pi.local:4533"},
		{"pi.local", 0, "http://pi.local"},
		{"https://music.example.com/", 0, "https://music.example.com"},
		{"http://10.0.0.2", 4533, "http://10.0.0.2:4533"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.host, tt.port); got != tt.want {
			t.Errorf("BaseURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}
