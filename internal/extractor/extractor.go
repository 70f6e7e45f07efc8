// Package extractor reads tags, audio properties, and embedded artwork
// from local audio files. Extraction never fails a pipeline run: files
// with unreadable tags fall back to filename and directory conventions.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"

	"tunevault/internal/identifier"
	"tunevault/internal/logger"
)

// FileMetadata is everything read from a single audio file.
type FileMetadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	TrackTotal  int
	DiscNumber  int
	DiscTotal   int
	Year        int
	Genre       string
	Composer    string
	Comment     string

	Duration   float64
	Bitrate    int
	SampleRate int
	Channels   int
	FileSize   int64
	Format     string
}

// Extractor reads file metadata relative to a music library root.
type Extractor struct {
	musicDir string
	log      *logger.Logger
}

func New(musicDir string, log *logger.Logger) *Extractor {
	return &Extractor{musicDir: musicDir, log: log}
}

var leadingTrackNumber = regexp.MustCompile(`^(\d+)\s+`)

// Extract reads tags and audio properties from path. Missing fields are
// filled from the filename and the Artist/Album directory layout.
func (e *Extractor) Extract(path string) FileMetadata {
	meta := FileMetadata{
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	if info, err := os.Stat(path); err == nil {
		meta.FileSize = info.Size()
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		e.log.Warn("Failed to read tags from %s: %v", filepath.Base(path), err)
	} else {
		meta.Title = firstTag(tags, taglib.Title)
		meta.Artist = firstTag(tags, taglib.Artist)
		meta.Album = firstTag(tags, taglib.Album)
		meta.AlbumArtist = firstTag(tags, taglib.AlbumArtist)
		meta.Genre = firstTag(tags, taglib.Genre)
		meta.Composer = firstTag(tags, taglib.Composer)
		meta.Comment = firstTag(tags, taglib.Comment)
		meta.TrackNumber, meta.TrackTotal = parseNumberPair(firstTag(tags, taglib.TrackNumber))
		meta.DiscNumber, meta.DiscTotal = parseNumberPair(firstTag(tags, taglib.DiscNumber))
		meta.Year = identifier.ExtractYear(firstTag(tags, taglib.Date))
	}

	if props, err := taglib.ReadProperties(path); err == nil {
		meta.Duration = props.Length.Seconds()
		meta.Bitrate = int(props.Bitrate)
		meta.SampleRate = int(props.SampleRate)
		meta.Channels = int(props.Channels)
	}

	e.fillFallbacks(path, &meta)
	return meta
}

// fillFallbacks derives title, artist, album, and track number from the
// file's name and position under the library root when tags are absent.
func (e *Extractor) fillFallbacks(path string, meta *FileMetadata) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if meta.Title == "" {
		meta.Title = stem
	}
	if meta.TrackNumber == 0 {
		if m := leadingTrackNumber.FindStringSubmatch(base); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				meta.TrackNumber = n
			}
		}
	}

	if meta.Artist != "" && meta.Album != "" {
		return
	}

	rel, err := filepath.Rel(e.musicDir, path)
	if err != nil {
		return
	}
	// Only a full Artist/Album/Track layout is trusted; a file one
	// level deep says nothing about which segment is the artist.
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return
	}
	if meta.Artist == "" {
		meta.Artist = parts[0]
	}
	if meta.Album == "" {
		meta.Album = parts[1]
	}
}

// Artwork is an embedded picture pulled out of an audio file.
type Artwork struct {
	Data     []byte
	MIMEType string
}

// ExtractArtwork returns the embedded front-cover image, if any.
func ExtractArtwork(path string) (*Artwork, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, nil
	}
	return &Artwork{Data: pic.Data, MIMEType: pic.MIMEType}, nil
}

// parseNumberPair parses "7" or "7/12" tag values.
func parseNumberPair(s string) (int, int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	if i := strings.Index(s, "/"); i >= 0 {
		n, _ := strconv.Atoi(strings.TrimSpace(s[:i]))
		total, _ := strconv.Atoi(strings.TrimSpace(s[i+1:]))
		return n, total
	}
	n, _ := strconv.Atoi(s)
	return n, 0
}

func firstTag(tags map[string][]string, key string) string {
	if vals := tags[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
