package utils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"song.mp3", true},
		{"song.m4a", true},
		{"song.flac", true},
		{"song.wav", true},
		{"song.aac", true},
		{"SONG.MP3", true},
		{"cover.jpg", false},
		{"notes.txt", false},
		{"song", false},
	}

	for _, tt := range tests {
		if got := IsAudioFile(tt.path); got != tt.want {
			t.Errorf("IsAudioFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFindAudioFiles(t *testing.T) {
	dir := t.TempDir()

	write := func(rel string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("Artist/Album/01 Track.mp3")
	write("Artist/Album/cover.jpg")
	write("loose.flac")
	write(".converted/Artist/Album/01 Track.m4a")
	write("Artist/.cache/stale.mp3")

	files, err := FindAudioFiles(dir)
	if err != nil {
		t.Fatalf("FindAudioFiles() error: %v", err)
	}

	var got []string
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rel)
	}
	sort.Strings(got)

	want := []string{
		filepath.Join("Artist", "Album", "01 Track.mp3"),
		"loose.flac",
	}
	if len(got) != len(want) {
		t.Fatalf("found %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFindAudioFiles_MissingDir(t *testing.T) {
	if _, err := FindAudioFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
