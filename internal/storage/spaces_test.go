package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tunevault/internal/logger"
)

func newTestSpaces(cfg Config) *Spaces {
	return &Spaces{
		http: &http.Client{Timeout: 5 * time.Second},
		cfg:  cfg,
		log:  logger.New(false),
	}
}

func TestContentTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"song.mp3", "audio/mpeg"},
		{"Song.MP3", "audio/mpeg"},
		{"song.m4a", "audio/mp4"},
		{"song.flac", "audio/flac"},
		{"song.wav", "audio/wav"},
		{"song.aac", "audio/aac"},
		{"catalog.json", "application/json"},
		{"cover.jpg", "image/jpeg"},
		{"cover.jpeg", "image/jpeg"},
		{"cover.png", "image/png"},
	}

	for _, tt := range tests {
		if got := contentTypeForPath(tt.path); got != tt.want {
			t.Errorf("contentTypeForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPrefixed(t *testing.T) {
	s := newTestSpaces(Config{})
	if got := s.prefixed("a/b.mp3"); got != "a/b.mp3" {
		t.Errorf("no prefix: got %q", got)
	}

	s = newTestSpaces(Config{Prefix: "music"})
	if got := s.prefixed("a/b.mp3"); got != "music/a/b.mp3" {
		t.Errorf("prefix: got %q", got)
	}

	s = newTestSpaces(Config{Prefix: "music/"})
	if got := s.prefixed("a/b.mp3"); got != "music/a/b.mp3" {
		t.Errorf("trailing slash prefix: got %q", got)
	}
}

func TestPublicURL(t *testing.T) {
	s := newTestSpaces(Config{Bucket: "mybucket", Region: "nyc3", Prefix: "music"})
	want := "https://mybucket.nyc3.cdn.digitaloceanspaces.com/music/Queen/A-Night-at-the-Opera/cover.jpg"
	if got := s.PublicURL("Queen/A-Night-at-the-Opera/cover.jpg"); got != want {
		t.Errorf("PublicURL() = %q, want %q", got, want)
	}
}

func TestExists_UsesPrimedKeys(t *testing.T) {
	s := newTestSpaces(Config{Bucket: "b", Region: "nyc3"})
	s.existing = map[string]struct{}{"Queen/song.mp3": {}}

	ctx := context.Background()
	if !s.Exists(ctx, "Queen/song.mp3") {
		t.Error("primed key should exist")
	}
	if s.Exists(ctx, "Queen/other.mp3") {
		t.Error("unprimed key should not exist")
	}

	s.markUploaded("Queen/other.mp3")
	if !s.Exists(ctx, "Queen/other.mp3") {
		t.Error("markUploaded should register the key")
	}
}

func TestFetchImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			w.Write([]byte("jpegdata"))
		case "/bad-type":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>not an image</html>"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := newTestSpaces(Config{})
	ctx := context.Background()

	data, contentType, err := s.fetchImage(ctx, srv.URL+"/ok.jpg")
	if err != nil {
		t.Fatalf("fetchImage() error: %v", err)
	}
	if string(data) != "jpegdata" {
		t.Errorf("data = %q", data)
	}
	if contentType != "image/jpeg" {
		t.Errorf("contentType = %q, want image/jpeg stripped of parameters", contentType)
	}

	if _, _, err := s.fetchImage(ctx, srv.URL+"/bad-type"); err == nil || !strings.Contains(err.Error(), "unsupported image type") {
		t.Errorf("expected unsupported type error, got %v", err)
	}
	if _, _, err := s.fetchImage(ctx, srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 response")
	}
}
