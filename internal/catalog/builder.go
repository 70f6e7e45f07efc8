package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"tunevault/internal/identifier"
	"tunevault/internal/logger"
	"tunevault/internal/progress"
	"tunevault/internal/provider/musicbrainz"
)

// MetadataSource is the free-text enrichment provider (artist bios,
// album descriptions, corrected names, artwork).
type MetadataSource interface {
	FetchArtistInfo(ctx context.Context, artistName string) ArtistInfo
	FetchAlbumInfo(ctx context.Context, artistName, albumName string) AlbumInfo
	FetchTrackInfo(ctx context.Context, artistName, trackTitle string) TrackInfo
}

// ReleaseSource is the relational provider for release and artist facts.
type ReleaseSource interface {
	Enabled() bool
	GetArtistDetails(ctx context.Context, artistName string) musicbrainz.ArtistDetails
	GetReleaseDetails(ctx context.Context, artistName, albumName string) musicbrainz.ReleaseDetails
}

// AlbumFallback fills in album data when the primary source has none.
type AlbumFallback interface {
	Enabled() bool
	FetchAlbumInfo(ctx context.Context, artistName, albumName string) AlbumInfo
}

// URLResolver maps a storage key to its public URL. Needed when an
// album rename moves tracks to a different key.
type URLResolver interface {
	PublicURL(key string) string
}

// Builder reconciles extracted track metadata against the providers and
// assembles the hierarchical catalog. Every provider but the metadata
// source is optional.
type Builder struct {
	metadata MetadataSource
	releases ReleaseSource
	fallback AlbumFallback
	resolver URLResolver
	log      *logger.Logger
	progress bool
}

func NewBuilder(metadata MetadataSource, releases ReleaseSource, fallback AlbumFallback, resolver URLResolver, log *logger.Logger) *Builder {
	return &Builder{
		metadata: metadata,
		releases: releases,
		fallback: fallback,
		resolver: resolver,
		log:      log,
		progress: true,
	}
}

// SetProgress toggles the terminal progress bar. Off in tests.
func (b *Builder) SetProgress(enabled bool) { b.progress = enabled }

// Build organizes tracks by album artist and album, enriches each level
// with provider metadata, and returns the catalog. TotalTracks is the
// input count, before duplicate folders collapse.
func (b *Builder) Build(ctx context.Context, tracks []*Track) *Catalog {
	type artistBucket struct {
		display string
		albums  map[string][]*Track
	}

	// Group by album artist, merging spellings that differ only in case.
	// The first spelling seen becomes the display name.
	buckets := make(map[string]*artistBucket)
	var order []string

	for _, track := range tracks {
		name := strOf(track.AlbumArtist)
		if name == "" {
			name = strOf(track.Artist)
		}
		if name == "" {
			name = "Unknown Artist"
		}
		album := strOf(track.Album)
		if album == "" {
			album = "Unknown Album"
		}

		key := identifier.GroupingKey(name)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &artistBucket{display: name, albums: make(map[string][]*Track)}
			buckets[key] = bucket
			order = append(order, key)
		}
		bucket.albums[album] = append(bucket.albums[album], track)
	}

	sort.Slice(order, func(i, j int) bool {
		return buckets[order[i]].display < buckets[order[j]].display
	})

	b.log.Info("Fetching metadata and building catalog for %d artists...", len(order))

	var bar *progress.Bar
	if b.progress {
		bar = progress.New(len(order), "Enriching")
		b.log.SetProgressBar(true)
		defer b.log.SetProgressBar(false)
	}

	artists := make([]*Artist, 0, len(order))
	for _, key := range order {
		bucket := buckets[key]
		artists = append(artists, b.buildArtist(ctx, bucket.display, bucket.albums))
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	return &Catalog{
		Artists:     artists,
		TotalTracks: len(tracks),
		GeneratedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

func (b *Builder) buildArtist(ctx context.Context, name string, albumTracks map[string][]*Track) *Artist {
	info := b.metadata.FetchArtistInfo(ctx, name)

	var details musicbrainz.ArtistDetails
	if b.releases != nil && b.releases.Enabled() {
		details = b.releases.GetArtistDetails(ctx, name)
	}

	albumNames := make([]string, 0, len(albumTracks))
	for albumName := range albumTracks {
		albumNames = append(albumNames, albumName)
	}
	sort.Strings(albumNames)

	albums := make([]*Album, 0, len(albumNames))
	for _, albumName := range albumNames {
		albums = append(albums, b.buildAlbum(ctx, name, albumName, albumTracks[albumName], info.Genre))
	}

	return &Artist{
		Name:           name,
		Bio:            OptString(info.Bio),
		ImageURL:       OptString(info.ImageURL),
		Genre:          OptString(info.Genre),
		Style:          OptString(info.Style),
		Mood:           OptString(info.Mood),
		Albums:         albums,
		ArtistType:     OptString(details.ArtistType),
		Area:           OptString(details.Area),
		BeginDate:      OptString(details.BeginDate),
		EndDate:        OptString(details.EndDate),
		Disambiguation: OptString(details.Disambiguation),
	}
}

func (b *Builder) buildAlbum(ctx context.Context, artistName, albumName string, tracks []*Track, artistGenre string) *Album {
	sortTracks(tracks)

	albumInfo := b.metadata.FetchAlbumInfo(ctx, artistName, albumName)
	albumImage := albumInfo.ImageURL

	if b.fallback != nil && b.fallback.Enabled() && albumInfo.IsEmpty() {
		fallbackInfo := b.fallback.FetchAlbumInfo(ctx, artistName, albumName)
		albumInfo = albumInfo.Merge(fallbackInfo)
		if albumImage == "" && albumInfo.ImageURL != "" {
			albumImage = albumInfo.ImageURL
			b.log.Debug("Using fallback source for album %q by %q", albumName, artistName)
		}
	}

	// Tracks that shipped their own cover art are the last-resort image.
	if albumImage == "" {
		for _, track := range tracks {
			if url := strOf(track.EmbeddedArtworkURL); url != "" {
				albumImage = url
				break
			}
		}
	}

	var release musicbrainz.ReleaseDetails
	if b.releases != nil && b.releases.Enabled() {
		release = b.releases.GetReleaseDetails(ctx, artistName, albumName)
	}

	// Canonical album name: provider's corrected name, then a track
	// search, then the relational title, then the local folder name.
	displayName := albumName
	if albumInfo.Name != "" {
		displayName = albumInfo.Name
	} else {
		if len(tracks) > 0 && tracks[0].Title != "" {
			trackInfo := b.metadata.FetchTrackInfo(ctx, artistName, tracks[0].Title)
			if trackInfo.Album != "" {
				displayName = trackInfo.Album
				b.log.Debug("Found album name %q via track search for %q", trackInfo.Album, tracks[0].Title)
				// Re-fetch under the corrected name so the description
				// and artwork match it.
				corrected := b.metadata.FetchAlbumInfo(ctx, artistName, trackInfo.Album)
				if corrected.Wiki != "" || corrected.ImageURL != "" {
					albumInfo = corrected
					if albumImage == "" && corrected.ImageURL != "" {
						albumImage = corrected.ImageURL
					}
				}
			}
		}
		if displayName == albumName && release.Title != "" {
			displayName = release.Title
		}
	}

	releaseDate := albumInfo.ReleaseDate
	if release.ReleaseDate != 0 {
		releaseDate = release.ReleaseDate
	}

	albumGenre := albumInfo.Genre
	if albumGenre == "" {
		albumGenre = artistGenre
	}

	for _, track := range tracks {
		b.enrichTrack(track, artistName, albumName, displayName, albumGenre, albumImage, albumInfo)
	}
	tracks = dedupeByStorageKey(tracks)

	return &Album{
		Name:        displayName,
		ImageURL:    OptString(albumImage),
		Wiki:        OptString(albumInfo.Wiki),
		ReleaseDate: OptInt(releaseDate),
		Genre:       OptString(albumGenre),
		Style:       OptString(albumInfo.Style),
		Mood:        OptString(albumInfo.Mood),
		Theme:       OptString(albumInfo.Theme),
		Tracks:      tracks,
		ReleaseType: OptString(release.ReleaseType),
		Country:     OptString(release.Country),
		Label:       OptString(release.Label),
		Barcode:     OptString(release.Barcode),
		MediaFormat: OptString(release.MediaFormat),
	}
}

// enrichTrack pushes album-level metadata down onto a track and rewrites
// its storage key when the album was renamed. Per-track provider lookups
// are skipped on purpose: track metadata almost always matches the album.
func (b *Builder) enrichTrack(track *Track, artistName, localAlbum, displayName, albumGenre, albumImage string, albumInfo AlbumInfo) {
	track.Album = OptString(displayName)

	if displayName != localAlbum && track.StorageKey != "" {
		parts := strings.Split(track.StorageKey, "/")
		if len(parts) >= 3 {
			newKey := identifier.SanitizeStorageKey(artistName, "Unknown") + "/" +
				identifier.SanitizeStorageKey(displayName, "Unknown") + "/" +
				parts[len(parts)-1]
			track.StorageKey = newKey
			if b.resolver != nil {
				track.URL = OptString(b.resolver.PublicURL(newKey))
			}
		}
	}

	if track.Genre == nil {
		track.Genre = OptString(albumGenre)
	}
	if track.Style == nil {
		track.Style = OptString(albumInfo.Style)
	}
	if track.Mood == nil {
		track.Mood = OptString(albumInfo.Mood)
	}
	if track.Theme == nil {
		track.Theme = OptString(albumInfo.Theme)
	}
	track.AlbumImageURL = OptString(albumImage)
	if track.EmbeddedArtworkURL == nil && albumImage != "" {
		track.EmbeddedArtworkURL = OptString(albumImage)
	}
}

// dedupeByStorageKey drops later tracks whose key was already seen.
// Duplicate local folders collapse onto one key after name correction;
// keyless tracks are always kept.
func dedupeByStorageKey(tracks []*Track) []*Track {
	seen := make(map[string]bool, len(tracks))
	unique := tracks[:0:0]
	for _, track := range tracks {
		if track.StorageKey == "" {
			unique = append(unique, track)
			continue
		}
		if !seen[track.StorageKey] {
			seen[track.StorageKey] = true
			unique = append(unique, track)
		}
	}
	return unique
}

// sortTracks orders by track number then title. Tracks with no number
// sort last.
func sortTracks(tracks []*Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		ni, nj := 999, 999
		if tracks[i].TrackNumber != nil {
			ni = *tracks[i].TrackNumber
		}
		if tracks[j].TrackNumber != nil {
			nj = *tracks[j].TrackNumber
		}
		if ni != nj {
			return ni < nj
		}
		return tracks[i].Title < tracks[j].Title
	})
}
