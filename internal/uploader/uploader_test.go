package uploader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunevault/internal/catalog"
	"tunevault/internal/extractor"
	"tunevault/internal/logger"
)

func TestExcludeFolder(t *testing.T) {
	files := []string{
		filepath.Join("Music", "playnow", "song.mp3"),
		filepath.Join("Music", "Queen", "song.mp3"),
		filepath.Join("Music", "Queen", "playnow.mp3"),
	}

	got := excludeFolder(files, "playnow")
	if len(got) != 2 {
		t.Fatalf("kept %d files, want 2: %v", len(got), got)
	}
	for _, f := range got {
		if containsSegment(f, "playnow") {
			t.Errorf("file %q should have been excluded", f)
		}
	}
}

func TestContainsSegment(t *testing.T) {
	tests := []struct {
		path    string
		segment string
		want    bool
	}{
		{"a/playnow/b.mp3", "playnow", true},
		{"playnow/b.mp3", "playnow", true},
		{"a/b/playnow", "playnow", true},
		{"a/playnowish/b.mp3", "playnow", false},
		{"a/b.mp3", "playnow", false},
	}

	for _, tt := range tests {
		if got := containsSegment(filepath.FromSlash(tt.path), tt.segment); got != tt.want {
			t.Errorf("containsSegment(%q, %q) = %v, want %v", tt.path, tt.segment, got, tt.want)
		}
	}
}

func TestFirstOf(t *testing.T) {
	if got := firstOf("", "b", "c"); got != "b" {
		t.Errorf("firstOf = %q, want %q", got, "b")
	}
	if got := firstOf("", ""); got != "" {
		t.Errorf("firstOf = %q, want empty", got)
	}
}

func TestTrackFromMetadata(t *testing.T) {
	meta := extractor.FileMetadata{
		Title:       "Bohemian Rhapsody",
		Artist:      "Queen",
		Album:       "A Night at the Opera",
		TrackNumber: 11,
		Duration:    354.8,
		Bitrate:     320,
		SampleRate:  44100,
		FileSize:    14200000,
		Format:      "m4a",
	}

	track := trackFromMetadata(meta, "flac")
	if track.Title != "Bohemian Rhapsody" {
		t.Errorf("Title = %q", track.Title)
	}
	if track.Duration == nil || *track.Duration != 354 {
		t.Errorf("Duration = %v, want truncated 354", track.Duration)
	}
	if track.Bitrate == nil || *track.Bitrate != 320 {
		t.Errorf("Bitrate = %v", track.Bitrate)
	}
	if track.Format != "m4a" || track.OriginalFormat != "flac" {
		t.Errorf("Format = %q/%q", track.Format, track.OriginalFormat)
	}
	if track.Year != nil {
		t.Error("zero year should stay nil")
	}
	if track.AlbumArtist != nil {
		t.Error("empty album artist should stay nil")
	}
}

func TestProcessMetadataOnly_KeyShape(t *testing.T) {
	musicDir := t.TempDir()
	path := filepath.Join(musicDir, "Mikky Ekko", "Reds", "01 Reds.flac")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	// Not a real flac; tag reading fails and filename fallbacks kick in.
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := &Uploader{
		log:     logger.New(false),
		extract: extractor.New(musicDir, logger.New(false)),
	}

	track := u.processMetadataOnly(path)
	// The stem-derived title keeps its track-number prefix; the leading
	// digits only feed track_number.
	if track.StorageKey != "Mikky-Ekko/Reds/01-Reds.m4a" {
		t.Errorf("StorageKey = %q, want %q", track.StorageKey, "Mikky-Ekko/Reds/01-Reds.m4a")
	}
	if track.Format != "m4a" || track.OriginalFormat != "flac" {
		t.Errorf("Format = %q/%q, want m4a/flac", track.Format, track.OriginalFormat)
	}
	if track.URL != nil {
		t.Error("dry-run track should have no URL")
	}
}

func TestWriteCatalog(t *testing.T) {
	c := &catalog.Catalog{
		Artists:     []*catalog.Artist{},
		TotalTracks: 0,
		GeneratedAt: "2026-08-31T00:00:00.000000Z",
	}

	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := writeCatalog(c, path); err != nil {
		t.Fatalf("writeCatalog() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.Contains(out, "\n  \"total_tracks\": 0") {
		t.Errorf("output not two-space indented:\n%s", out)
	}
	if !strings.Contains(out, `"generated_at": "2026-08-31T00:00:00.000000Z"`) {
		t.Errorf("generated_at missing:\n%s", out)
	}
}

func TestWriteCatalog_NoHTMLEscaping(t *testing.T) {
	url := "https://b.nyc3.cdn.digitaloceanspaces.com/a?x=1&y=2"
	c := &catalog.Catalog{
		Artists: []*catalog.Artist{
			{
				Name: "Queen",
				Albums: []*catalog.Album{
					{
						Name: "A Night at the Opera",
						Tracks: []*catalog.Track{
							{Title: "Bohemian Rhapsody", URL: catalog.OptString(url)},
						},
					},
				},
			},
		},
		TotalTracks: 1,
		GeneratedAt: "2026-08-31T00:00:00.000000Z",
	}

	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := writeCatalog(c, path); err != nil {
		t.Fatalf("writeCatalog() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `\u0026`) {
		t.Error("ampersand was HTML-escaped in catalog output")
	}
	if !strings.Contains(string(data), url) {
		t.Error("URL not serialized verbatim")
	}
}
