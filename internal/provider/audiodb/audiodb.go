// Package audiodb is the free-text catalog client (TheAudioDB). It is the
// primary source for artist bios, album descriptions, artwork and the
// canonical artist/album names that override locally derived ones.
package audiodb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tunevault/internal/cache"
	"tunevault/internal/catalog"
	"tunevault/internal/identifier"
	"tunevault/internal/logger"
	"tunevault/internal/provider/musicbrainz"
)

const (
	// Free tier endpoint; no API key required.
	defaultAPIURL = "https://www.theaudiodb.com/api/v1/json/123"

	minRequestInterval = 500 * time.Millisecond

	maxAttempts = 3
)

// ImageStore persists fetched images to object storage and returns their
// public URLs. Implemented by the storage service; nil disables uploads.
type ImageStore interface {
	DownloadAndUploadAlbumImage(ctx context.Context, imageURL, artist, album string) string
	DownloadAndUploadArtistImage(ctx context.Context, imageURL, artist string) string
}

// ReleaseLookup supplies MusicBrainz release identifiers for the
// MBID-qualified album lookup. Nil disables that path.
type ReleaseLookup interface {
	Enabled() bool
	GetReleaseDetails(ctx context.Context, artistName, albumName string) musicbrainz.ReleaseDetails
}

type albumKey struct {
	Artist string
	Album  string
}

type trackKey struct {
	Artist string
	Title  string
}

// artistIdentity is the canonical name and provider ID cached by artist
// searches, reused for the all-albums-by-ID fallback.
type artistIdentity struct {
	Name string
	ID   string
}

// Client is a rate-limited TheAudioDB client. All lookups, including
// failed ones, are cached per query tuple for the lifetime of the run.
type Client struct {
	httpClient *http.Client
	apiURL     string
	store      ImageStore
	releases   ReleaseLookup
	limiter    *rate.Limiter
	log        *logger.Logger

	artists   *cache.Cache[string, catalog.ArtistInfo]
	albums    *cache.Cache[albumKey, catalog.AlbumInfo]
	tracks    *cache.Cache[trackKey, catalog.TrackInfo]
	artistIDs *cache.Cache[string, artistIdentity]
}

// New creates a TheAudioDB client. store and releases may be nil.
func New(store ImageStore, releases ReleaseLookup, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     defaultAPIURL,
		store:      store,
		releases:   releases,
		limiter:    rate.NewLimiter(rate.Every(minRequestInterval), 1),
		log:        log,
		artists:    cache.New[string, catalog.ArtistInfo](),
		albums:     cache.New[albumKey, catalog.AlbumInfo](),
		tracks:     cache.New[trackKey, catalog.TrackInfo](),
		artistIDs:  cache.New[string, artistIdentity](),
	}
}

// FetchArtistInfo looks up an artist by free-text search, trying name
// variations in order until one yields a plausible result. The canonical
// name and provider ID are remembered for later album lookups.
func (c *Client) FetchArtistInfo(ctx context.Context, artistName string) catalog.ArtistInfo {
	if cached, ok := c.artists.Get(artistName); ok {
		return cached
	}

	var result catalog.ArtistInfo
	var found *artistPayload

	for _, variation := range identifier.NameVariations(artistName) {
		params := url.Values{}
		params.Set("s", variation)

		var resp artistSearchResponse
		if !c.getJSON(ctx, "search.php", params, &resp) {
			continue
		}
		if len(resp.Artists) == 0 {
			continue
		}
		candidate := resp.Artists[0]
		if candidate.Name != "" && !identifier.NamesLooselyMatch(variation, candidate.Name) {
			c.log.Debug("Rejecting artist result %q for search %q", candidate.Name, variation)
			continue
		}
		found = &candidate
		c.log.Debug("Found artist %q using variation %q", artistName, variation)
		break
	}

	if found != nil {
		canonical := found.Name
		if canonical == "" {
			canonical = artistName
		}
		if found.ID != "" {
			c.artistIDs.Set(artistName, artistIdentity{Name: canonical, ID: found.ID})
		}

		result.Bio = strings.TrimSpace(found.BiographyEN)
		result.Genre = found.Genre
		result.Style = found.Style
		result.Mood = found.Mood

		imageURL := firstOf(found.Thumb, found.Fanart, found.Fanart2)
		if imageURL != "" && c.store != nil {
			result.ImageURL = c.store.DownloadAndUploadArtistImage(ctx, imageURL, artistName)
		}
	}

	c.artists.Set(artistName, result)
	return result
}

// FetchAlbumInfo resolves album metadata with a fixed fallback ladder:
// MBID-qualified lookup, edition-normalized name search, raw name search,
// then an exact case-insensitive match against all albums of the cached
// artist ID. The first source that yields data wins.
func (c *Client) FetchAlbumInfo(ctx context.Context, artistName, albumName string) catalog.AlbumInfo {
	key := albumKey{Artist: artistName, Album: albumName}
	if cached, ok := c.albums.Get(key); ok {
		return cached
	}

	var result catalog.AlbumInfo

	canonicalArtist := artistName
	var artistID string
	if identity, ok := c.artistIDs.Get(artistName); ok {
		canonicalArtist = identity.Name
		artistID = identity.ID
	}

	var album *albumPayload
	var musicbrainzTitle string

	// MBID lookup first, when the relational client resolved the release.
	if c.releases != nil && c.releases.Enabled() {
		details := c.releases.GetReleaseDetails(ctx, artistName, albumName)
		if details.MBID != "" {
			c.log.Debug("Using MBID %s for album %q by %q", details.MBID, albumName, artistName)
			params := url.Values{}
			params.Set("i", details.MBID)
			var resp albumResponse
			if c.getJSON(ctx, "album-mb.php", params, &resp) && len(resp.Albums) > 0 {
				album = &resp.Albums[0]
			}
		}
		musicbrainzTitle = details.Title
	}

	// Edition-normalized search strips Deluxe/Remastered noise so the
	// provider's canonical name comes back instead of the local variant.
	normalized := identifier.NormalizeAlbumEdition(albumName)
	if album == nil && normalized != albumName {
		if a := c.searchAlbum(ctx, canonicalArtist, normalized); a != nil {
			album = a
			c.log.Debug("Found album %q (normalized from %q) using canonical artist %q", normalized, albumName, canonicalArtist)
		}
	}

	if album == nil {
		if a := c.searchAlbum(ctx, canonicalArtist, albumName); a != nil {
			album = a
			c.log.Debug("Found album %q using canonical artist %q", albumName, canonicalArtist)
		}
	}

	// Last resort: list everything under the artist ID and match by name.
	if album == nil && artistID != "" {
		params := url.Values{}
		params.Set("i", artistID)
		var resp albumResponse
		if c.getJSON(ctx, "album.php", params, &resp) {
			for i := range resp.Albums {
				if strings.EqualFold(resp.Albums[i].Name, albumName) {
					album = &resp.Albums[i]
					c.log.Debug("Found album %q via artist ID lookup", albumName)
					break
				}
			}
		}
	}

	if album != nil {
		result.Name = firstOf(album.Name, musicbrainzTitle)
		result.Wiki = strings.TrimSpace(firstOf(album.DescriptionEN, album.Description))
		result.ReleaseDate = identifier.ExtractYear(album.YearReleased)
		result.Genre = album.Genre
		result.Style = album.Style
		result.Mood = album.Mood
		result.Theme = album.Theme

		imageURL := firstOf(album.Thumb, album.ThumbHQ)
		if imageURL != "" && c.store != nil {
			// Key the stored image under the corrected album name.
			storageAlbum := firstOf(result.Name, albumName)
			result.ImageURL = c.store.DownloadAndUploadAlbumImage(ctx, imageURL, artistName, storageAlbum)
		}
	}

	c.albums.Set(key, result)
	return result
}

// FetchTrackInfo looks up a single track by exact (artist, title) search.
// Its album field is the last-resort source for a canonical album name.
func (c *Client) FetchTrackInfo(ctx context.Context, artistName, trackTitle string) catalog.TrackInfo {
	key := trackKey{Artist: artistName, Title: trackTitle}
	if cached, ok := c.tracks.Get(key); ok {
		return cached
	}

	var result catalog.TrackInfo

	params := url.Values{}
	params.Set("s", artistName)
	params.Set("t", trackTitle)

	var resp trackResponse
	if c.getJSON(ctx, "searchtrack.php", params, &resp) && len(resp.Tracks) > 0 {
		track := resp.Tracks[0]
		result.Name = track.Name
		result.Album = track.Album
		result.Genre = track.Genre
		result.Style = track.Style
		result.Mood = track.Mood
		result.Theme = track.Theme
	}

	c.tracks.Set(key, result)
	return result
}

func (c *Client) searchAlbum(ctx context.Context, artistName, albumName string) *albumPayload {
	params := url.Values{}
	params.Set("s", artistName)
	params.Set("a", albumName)

	var resp albumResponse
	if !c.getJSON(ctx, "searchalbum.php", params, &resp) {
		return nil
	}
	if len(resp.Albums) == 0 {
		return nil
	}
	return &resp.Albums[0]
}

// getJSON performs a rate-limited GET with retries on transport failures
// (1s, 2s, 4s backoff). Returns false when no usable response was
// obtained.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) bool {
	reqURL := fmt.Sprintf("%s/%s?%s", c.apiURL, endpoint, params.Encode())

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}

		err := c.doOnce(ctx, reqURL, out)
		if err == nil {
			return true
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(1<<attempt) * time.Second
			c.log.Debug("TheAudioDB request failed (attempt %d/%d), retrying in %s: %v", attempt+1, maxAttempts, backoff, err)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		} else {
			c.log.Debug("TheAudioDB API request failed for %s: %v", endpoint, err)
		}
	}
	return false
}

func (c *Client) doOnce(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create audiodb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("audiodb returned %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// TheAudioDB API response types

type artistSearchResponse struct {
	Artists []artistPayload `json:"artists"`
}

type artistPayload struct {
	ID          string `json:"idArtist"`
	Name        string `json:"strArtist"`
	BiographyEN string `json:"strBiographyEN"`
	Genre       string `json:"strGenre"`
	Style       string `json:"strStyle"`
	Mood        string `json:"strMood"`
	Thumb       string `json:"strArtistThumb"`
	Fanart      string `json:"strArtistFanart"`
	Fanart2     string `json:"strArtistFanart2"`
}

type albumResponse struct {
	Albums []albumPayload `json:"album"`
}

type albumPayload struct {
	Name          string `json:"strAlbum"`
	DescriptionEN string `json:"strDescriptionEN"`
	Description   string `json:"strDescription"`
	YearReleased  string `json:"intYearReleased"`
	Genre         string `json:"strGenre"`
	Style         string `json:"strStyle"`
	Mood          string `json:"strMood"`
	Theme         string `json:"strTheme"`
	Thumb         string `json:"strAlbumThumb"`
	ThumbHQ       string `json:"strAlbumThumbHQ"`
}

type trackResponse struct {
	Tracks []trackPayload `json:"track"`
}

type trackPayload struct {
	Name  string `json:"strTrack"`
	Album string `json:"strAlbum"`
	Genre string `json:"strGenre"`
	Style string `json:"strStyle"`
	Mood  string `json:"strMood"`
	Theme string `json:"strTheme"`
}
