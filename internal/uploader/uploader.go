// Package uploader orchestrates the full library run: scan, convert,
// extract, upload, enrich, and write the catalog.
package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tunevault/internal/cache"
	"tunevault/internal/catalog"
	"tunevault/internal/config"
	"tunevault/internal/converter"
	"tunevault/internal/extractor"
	"tunevault/internal/identifier"
	"tunevault/internal/logger"
	"tunevault/internal/progress"
	"tunevault/internal/provider/audiodb"
	"tunevault/internal/provider/lastfm"
	"tunevault/internal/provider/musicbrainz"
	"tunevault/internal/storage"
	"tunevault/pkg/utils"
)

// Stats summarizes one run.
type Stats struct {
	TotalTracks int
	Uploaded    int
	Skipped     int
	Converted   int
	CatalogURL  string
}

type artworkKey struct {
	Artist string
	Album  string
}

// Uploader wires the extractors, converters, providers, and storage into
// one pipeline.
type Uploader struct {
	cfg       config.Config
	log       *logger.Logger
	store     *storage.Spaces
	metadata  *audiodb.Client
	releases  *musicbrainz.Client
	fallback  *lastfm.Client
	extract   *extractor.Extractor
	convert   *converter.Converter
	builder   *catalog.Builder
	artwork   *cache.Cache[artworkKey, string]
	artworkMu sync.Mutex
}

// New builds the pipeline from configuration. store may be nil in
// dry-run mode.
func New(cfg config.Config, store *storage.Spaces, log *logger.Logger) *Uploader {
	releases := musicbrainz.New(cfg.MusicBrainzUserAgent, cfg.MusicBrainzEnabled, log)

	var imageStore audiodb.ImageStore
	if store != nil {
		imageStore = store
	}
	metadata := audiodb.New(imageStore, releases, log)

	var fallback *lastfm.Client
	if cfg.LastFMAPIKey != "" {
		var lfStore lastfm.ImageStore
		if store != nil {
			lfStore = store
		}
		fallback = lastfm.New(cfg.LastFMAPIKey, lfStore, log)
	}

	var resolver catalog.URLResolver
	if store != nil {
		resolver = store
	}

	var albumFallback catalog.AlbumFallback
	if fallback != nil {
		albumFallback = fallback
	}

	return &Uploader{
		cfg:      cfg,
		log:      log,
		store:    store,
		metadata: metadata,
		releases: releases,
		fallback: fallback,
		extract:  extractor.New(cfg.MusicDir, log),
		convert:  converter.New(cfg.MusicDir, cfg.ConvertedDir, log),
		builder:  catalog.NewBuilder(metadata, releases, albumFallback, resolver, log),
		artwork:  cache.New[artworkKey, string](),
	}
}

// Run executes the pipeline and returns run statistics.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	u.log.Info("Scanning %s for audio files...", u.cfg.MusicDir)
	files, err := utils.FindAudioFiles(u.cfg.MusicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan music directory: %w", err)
	}

	// The playnow folder holds staging files that should not show up in
	// a dry-run preview.
	if u.cfg.DryRun {
		files = excludeFolder(files, "playnow")
	}

	u.log.Info("Found %d audio files", len(files))
	if len(files) == 0 {
		return &Stats{}, nil
	}

	if !u.cfg.DryRun {
		u.log.Info("Fetching list of existing remote files...")
		if err := u.store.PrimeExistingKeys(ctx); err != nil {
			return nil, err
		}
	}

	toConvert := 0
	for _, f := range files {
		if converter.NeedsConversion(f) {
			toConvert++
		}
	}
	if toConvert > 0 {
		u.log.Info("  %d files will be converted to m4a", toConvert)
	}
	if u.cfg.DryRun {
		u.log.Info("Dry run mode - generating catalog without uploads...")
	}

	u.log.Info("Processing files with %d parallel workers...", u.cfg.Workers)

	var (
		mu        sync.Mutex
		tracks    []*catalog.Track
		uploaded  atomic.Int64
		skipped   atomic.Int64
		converted atomic.Int64
	)

	bar := progress.New(len(files), "Uploading")
	u.log.SetProgressBar(true)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Workers)

	for _, file := range files {
		g.Go(func() error {
			defer bar.Increment()

			var track *catalog.Track
			var outcome fileOutcome
			var err error
			if u.cfg.DryRun {
				track = u.processMetadataOnly(file)
			} else {
				track, outcome, err = u.processFile(gctx, file)
			}
			if err != nil {
				u.log.Error("Error processing %s: %v", filepath.Base(file), err)
				return nil
			}
			if track == nil {
				return nil
			}

			if outcome.alreadyExists {
				skipped.Add(1)
			} else if !u.cfg.DryRun {
				uploaded.Add(1)
			}
			if outcome.converted {
				converted.Add(1)
			}

			mu.Lock()
			tracks = append(tracks, track)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bar.Finish()
	u.log.SetProgressBar(false)

	built := u.builder.Build(ctx, tracks)

	if err := writeCatalog(built, u.cfg.CatalogFile); err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalTracks: len(tracks),
		Uploaded:    int(uploaded.Load()),
		Skipped:     int(skipped.Load()),
		Converted:   int(converted.Load()),
	}

	if u.cfg.DryRun {
		u.log.Info("Dry run complete!")
		u.log.Info("  Total tracks: %d", stats.TotalTracks)
		u.log.Info("  Catalog saved to: %s", u.cfg.CatalogFile)
		return stats, nil
	}

	u.log.Info("Uploading catalog...")
	catalogURL, err := u.store.UploadCatalog(ctx, u.cfg.CatalogFile, filepath.Base(u.cfg.CatalogFile))
	if err != nil {
		return nil, err
	}
	stats.CatalogURL = catalogURL

	u.log.Info("Complete!")
	u.log.Info("  Uploaded: %d files", stats.Uploaded)
	u.log.Info("  Skipped (already exists): %d files", stats.Skipped)
	if stats.Converted > 0 {
		u.log.Info("  Converted to m4a: %d files", stats.Converted)
	}
	u.log.Info("  Total tracks: %d", stats.TotalTracks)
	u.log.Info("  Catalog saved to: %s", u.cfg.CatalogFile)
	u.log.Info("  Catalog URL: %s", catalogURL)
	return stats, nil
}

type fileOutcome struct {
	alreadyExists bool
	converted     bool
}

// processFile converts, extracts, uploads, and describes one audio file.
// Metadata is always read from the original file, not the transcode.
func (u *Uploader) processFile(ctx context.Context, path string) (*catalog.Track, fileOutcome, error) {
	var outcome fileOutcome

	originalPath := path
	ext := strings.ToLower(filepath.Ext(path))
	originalFormat := strings.TrimPrefix(ext, ".")

	if converter.NeedsConversion(path) {
		converted, err := u.convert.ConvertToM4A(ctx, path)
		if err != nil {
			return nil, outcome, fmt.Errorf("conversion failed: %w", err)
		}
		path = converted
		ext = ".m4a"
		outcome.converted = true
	}

	meta := u.extract.Extract(originalPath)
	meta.Format = strings.TrimPrefix(ext, ".")

	albumArtist := firstOf(meta.AlbumArtist, meta.Artist, "Unknown Artist")
	albumArtist = identifier.NormalizeArtistName(albumArtist)
	albumName := firstOf(meta.Album, "Unknown Album")

	// Ask the metadata provider for the canonical album name so files
	// from differently spelled local folders land under one key.
	albumInfo := u.metadata.FetchAlbumInfo(ctx, albumArtist, albumName)
	correctedAlbum := firstOf(albumInfo.Name, albumName)

	key := identifier.SanitizeStorageKey(albumArtist, "Unknown") + "/" +
		identifier.SanitizeStorageKey(correctedAlbum, "Unknown") + "/" +
		identifier.SanitizeStorageKey(meta.Title, "Unknown Track") + ext

	outcome.alreadyExists = u.store.Exists(ctx, key)
	if !outcome.alreadyExists {
		if _, err := u.store.UploadFile(ctx, path, key); err != nil {
			return nil, outcome, err
		}
	}

	artworkURL := u.embeddedArtwork(ctx, originalPath, albumArtist, correctedAlbum)

	track := trackFromMetadata(meta, originalFormat)
	track.StorageKey = key
	track.URL = catalog.OptString(u.store.PublicURL(key))
	track.EmbeddedArtworkURL = catalog.OptString(artworkURL)
	return track, outcome, nil
}

// processMetadataOnly builds a track entry without touching storage.
// Used in dry-run mode; keys use the local album name since no provider
// correction has happened yet.
func (u *Uploader) processMetadataOnly(path string) *catalog.Track {
	ext := strings.ToLower(filepath.Ext(path))
	originalFormat := strings.TrimPrefix(ext, ".")
	if converter.NeedsConversion(path) {
		ext = ".m4a"
	}

	meta := u.extract.Extract(path)
	meta.Format = strings.TrimPrefix(ext, ".")

	albumArtist := firstOf(meta.AlbumArtist, meta.Artist, "Unknown Artist")
	albumArtist = identifier.NormalizeArtistName(albumArtist)
	albumName := firstOf(meta.Album, "Unknown Album")

	key := identifier.SanitizeStorageKey(albumArtist, "Unknown") + "/" +
		identifier.SanitizeStorageKey(albumName, "Unknown") + "/" +
		identifier.SanitizeStorageKey(meta.Title, "Unknown Track") + ext

	track := trackFromMetadata(meta, originalFormat)
	track.StorageKey = key
	return track
}

// embeddedArtwork extracts and uploads a file's embedded picture once
// per album. The empty-string placeholder marks an album that is being
// processed or had no artwork.
func (u *Uploader) embeddedArtwork(ctx context.Context, path, albumArtist, album string) string {
	key := artworkKey{Artist: albumArtist, Album: album}

	u.artworkMu.Lock()
	if url, ok := u.artwork.Get(key); ok {
		u.artworkMu.Unlock()
		return url
	}
	u.artwork.Set(key, "")
	u.artworkMu.Unlock()

	art, err := extractor.ExtractArtwork(path)
	if err != nil {
		u.log.Debug("No embedded artwork in %s: %v", filepath.Base(path), err)
		return ""
	}
	if art == nil {
		return ""
	}

	url := u.store.UploadArtworkBytes(ctx, art.Data, art.MIMEType, albumArtist, album)
	if url != "" {
		u.artwork.Set(key, url)
	}
	return url
}

// writeCatalog serializes the catalog to disk. A serialization failure
// is the only error that aborts the run after processing.
func writeCatalog(c *catalog.Catalog, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create catalog file %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to serialize catalog: %w", err)
	}
	return f.Close()
}

func trackFromMetadata(meta extractor.FileMetadata, originalFormat string) *catalog.Track {
	return &catalog.Track{
		Title:          meta.Title,
		Artist:         catalog.OptString(meta.Artist),
		Album:          catalog.OptString(meta.Album),
		AlbumArtist:    catalog.OptString(meta.AlbumArtist),
		TrackNumber:    catalog.OptInt(meta.TrackNumber),
		TrackTotal:     catalog.OptInt(meta.TrackTotal),
		DiscNumber:     catalog.OptInt(meta.DiscNumber),
		DiscTotal:      catalog.OptInt(meta.DiscTotal),
		Duration:       catalog.OptInt(int(meta.Duration)),
		Year:           catalog.OptInt(meta.Year),
		Genre:          catalog.OptString(meta.Genre),
		Composer:       catalog.OptString(meta.Composer),
		Comment:        catalog.OptString(meta.Comment),
		Bitrate:        catalog.OptFloat(float64(meta.Bitrate)),
		SampleRate:     catalog.OptInt(meta.SampleRate),
		Channels:       catalog.OptInt(meta.Channels),
		FileSize:       catalog.OptInt64(meta.FileSize),
		Format:         meta.Format,
		OriginalFormat: originalFormat,
	}
}

// excludeFolder drops files that have folder as one of their path
// segments.
func excludeFolder(files []string, folder string) []string {
	kept := files[:0:0]
	for _, f := range files {
		if !containsSegment(f, folder) {
			kept = append(kept, f)
		}
	}
	return kept
}

func containsSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
