package catalog

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTrackJSON_AbsentFieldsAreNull(t *testing.T) {
	track := Track{
		Title:          "Take Me to Church",
		Format:         "mp3",
		OriginalFormat: "mp3",
		StorageKey:     "Hozier/Hozier/Take-Me-to-Church.mp3",
	}

	data, err := json.Marshal(track)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	for _, field := range []string{
		`"artist":null`,
		`"album":null`,
		`"track_number":null`,
		`"duration":null`,
		`"year":null`,
		`"url":null`,
		`"embedded_artwork_url":null`,
		`"album_image_url":null`,
	} {
		if !strings.Contains(out, field) {
			t.Errorf("expected %s in %s", field, out)
		}
	}
	if !strings.Contains(out, `"s3_key":"Hozier/Hozier/Take-Me-to-Church.mp3"`) {
		t.Errorf("storage key field missing or renamed: %s", out)
	}
}

func TestTrackJSON_FieldNames(t *testing.T) {
	track := Track{
		Title:      "Reds",
		SampleRate: OptInt(44100),
		FileSize:   OptInt64(123456),
	}

	data, err := json.Marshal(track)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	// Contract with the presentation layer: lowercase, no underscores in
	// samplerate and filesize.
	if !strings.Contains(out, `"samplerate":44100`) {
		t.Errorf("samplerate field wrong: %s", out)
	}
	if !strings.Contains(out, `"filesize":123456`) {
		t.Errorf("filesize field wrong: %s", out)
	}
}

func TestAlbumInfoIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		info AlbumInfo
		want bool
	}{
		{"zero value", AlbumInfo{}, true},
		{"only name", AlbumInfo{Name: "Hozier"}, true},
		{"only release date", AlbumInfo{ReleaseDate: 2014}, true},
		{"has image", AlbumInfo{ImageURL: "x"}, false},
		{"has wiki", AlbumInfo{Wiki: "x"}, false},
		{"has genre", AlbumInfo{Genre: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlbumInfoMerge(t *testing.T) {
	primary := AlbumInfo{Wiki: "primary wiki", Genre: "Rock"}
	fallback := AlbumInfo{
		Wiki:        "fallback wiki",
		ImageURL:    "fallback.jpg",
		ReleaseDate: 2014,
		Name:        "Corrected",
	}

	merged := primary.Merge(fallback)

	if merged.Wiki != "primary wiki" {
		t.Errorf("Wiki = %q, existing values must win", merged.Wiki)
	}
	if merged.ImageURL != "fallback.jpg" {
		t.Errorf("ImageURL = %q, gaps must be filled", merged.ImageURL)
	}
	if merged.ReleaseDate != 2014 {
		t.Errorf("ReleaseDate = %d, zero must be filled", merged.ReleaseDate)
	}
	if merged.Name != "Corrected" {
		t.Errorf("Name = %q", merged.Name)
	}
	if merged.Genre != "Rock" {
		t.Errorf("Genre = %q", merged.Genre)
	}
}

func TestOptHelpers(t *testing.T) {
	if OptString("") != nil {
		t.Error("OptString(\"\") must be nil")
	}
	if v := OptString("x"); v == nil || *v != "x" {
		t.Error("OptString(x) must point to x")
	}
	if OptInt(0) != nil {
		t.Error("OptInt(0) must be nil")
	}
	if OptInt64(0) != nil {
		t.Error("OptInt64(0) must be nil")
	}
	if OptFloat(0) != nil {
		t.Error("OptFloat(0) must be nil")
	}
	if v := OptFloat(320); v == nil || *v != 320 {
		t.Error("OptFloat(320) must point to 320")
	}
}
