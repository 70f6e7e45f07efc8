// Package musicbrainz resolves MusicBrainz identifiers (MBIDs) for
// artists and releases and fetches their extended details. MBIDs make the
// free-text provider's lookups precise.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tunevault/internal/cache"
	"tunevault/internal/identifier"
	"tunevault/internal/logger"
)

const (
	defaultAPIURL = "https://musicbrainz.org/ws/2"

	// MusicBrainz asks for no more than 1 request per second.
	minRequestInterval = time.Second

	maxAttempts = 3
)

// ArtistDetails is the extended artist record from MusicBrainz.
type ArtistDetails struct {
	MBID           string
	Name           string
	ArtistType     string // person, group, orchestra, choir, ...
	Area           string // country or region
	BeginDate      string // formation or birth date
	EndDate        string // dissolution or death date
	Disambiguation string
	Tags           []string
}

// ReleaseDetails is the extended release record from MusicBrainz.
type ReleaseDetails struct {
	MBID        string
	Title       string
	ReleaseDate int
	ReleaseType string // album, single, EP, compilation, ...
	Country     string
	Label       string
	Barcode     string
	MediaFormat string // CD, vinyl, digital, ...
	Tags        []string
}

type releaseKey struct {
	Artist string
	Album  string
}

// Client is a rate-limited MusicBrainz Web API client. Successful and
// failed lookups are both cached for the lifetime of the process.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
	enabled    bool
	limiter    *rate.Limiter
	log        *logger.Logger

	// artist name -> MBID; empty string means "looked up, not found"
	artistIDs     *cache.Cache[string, string]
	artistDetails *cache.Cache[string, ArtistDetails]
	releases      *cache.Cache[releaseKey, ReleaseDetails]
}

// New creates a MusicBrainz client. The userAgent is required by the
// provider's terms of use.
func New(userAgent string, enabled bool, log *logger.Logger) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		apiURL:        defaultAPIURL,
		userAgent:     userAgent,
		enabled:       enabled,
		limiter:       rate.NewLimiter(rate.Every(minRequestInterval), 1),
		log:           log,
		artistIDs:     cache.New[string, string](),
		artistDetails: cache.New[string, ArtistDetails](),
		releases:      cache.New[releaseKey, ReleaseDetails](),
	}
}

// Enabled reports whether MusicBrainz lookups are turned on.
func (c *Client) Enabled() bool { return c.enabled }

// GetArtistMBID returns the MBID for an artist, or "" if none was found.
func (c *Client) GetArtistMBID(ctx context.Context, artistName string) string {
	if !c.enabled {
		return ""
	}
	if mbid, ok := c.artistIDs.Get(artistName); ok {
		return mbid
	}

	mbid := c.searchArtist(ctx, artistName)
	c.artistIDs.Set(artistName, mbid)

	if mbid != "" {
		c.log.Debug("Found MBID for artist %q: %s", artistName, mbid)
	} else {
		c.log.Debug("No MBID found for artist %q", artistName)
	}
	return mbid
}

// GetArtistDetails returns extended artist info. Fields are empty when the
// artist could not be resolved.
func (c *Client) GetArtistDetails(ctx context.Context, artistName string) ArtistDetails {
	if !c.enabled {
		return ArtistDetails{}
	}
	if details, ok := c.artistDetails.Get(artistName); ok {
		return details
	}

	mbid := c.GetArtistMBID(ctx, artistName)
	if mbid == "" {
		c.artistDetails.Set(artistName, ArtistDetails{})
		return ArtistDetails{}
	}

	details := c.fetchArtistDetails(ctx, mbid)
	c.artistDetails.Set(artistName, details)

	if details.ArtistType != "" {
		c.log.Debug("Got artist details for %q: type=%s area=%s", artistName, details.ArtistType, details.Area)
	}
	return details
}

// GetReleaseDetails returns extended release info for an (artist, album)
// pair. Fields are empty when the release could not be resolved.
func (c *Client) GetReleaseDetails(ctx context.Context, artistName, albumName string) ReleaseDetails {
	if !c.enabled {
		return ReleaseDetails{}
	}
	key := releaseKey{Artist: artistName, Album: albumName}
	if details, ok := c.releases.Get(key); ok {
		return details
	}

	details := c.searchRelease(ctx, artistName, albumName)
	c.releases.Set(key, details)

	if details.MBID != "" {
		c.log.Debug("Found release %q by %q: MBID=%s title=%q", albumName, artistName, details.MBID, details.Title)
	} else {
		c.log.Debug("No MusicBrainz match for release %q by %q", albumName, artistName)
	}
	return details
}

// searchArtist tries an escaped exact query first, then a literal query
// for names whose special characters defeat escaping (e.g. "B.O.B").
func (c *Client) searchArtist(ctx context.Context, artistName string) string {
	if mbid := c.doArtistSearch(ctx, artistName, true); mbid != "" {
		return mbid
	}
	if strings.ContainsAny(artistName, ".&!") {
		if mbid := c.doArtistSearch(ctx, artistName, false); mbid != "" {
			return mbid
		}
	}
	return ""
}

func (c *Client) doArtistSearch(ctx context.Context, artistName string, escape bool) string {
	name := artistName
	if escape {
		name = escapeLucene(artistName)
	}

	params := url.Values{}
	params.Set("query", `artist:"`+name+`"`)
	params.Set("limit", "5")

	var resp artistSearchResponse
	if !c.getJSON(ctx, "artist", params, &resp) {
		return ""
	}

	if len(resp.Artists) == 0 {
		return ""
	}
	// Prefer an exact name match over the provider's score order.
	for _, a := range resp.Artists {
		if strings.EqualFold(a.Name, artistName) {
			c.log.Debug("Found exact match for %q: %s", artistName, a.ID)
			return a.ID
		}
	}
	return resp.Artists[0].ID
}

func (c *Client) fetchArtistDetails(ctx context.Context, mbid string) ArtistDetails {
	params := url.Values{}
	params.Set("inc", "tags")

	var resp artistResponse
	if !c.getJSON(ctx, "artist/"+mbid, params, &resp) {
		return ArtistDetails{MBID: mbid}
	}

	return ArtistDetails{
		MBID:           mbid,
		Name:           resp.Name,
		ArtistType:     resp.Type,
		Area:           resp.Area.Name,
		BeginDate:      resp.LifeSpan.Begin,
		EndDate:        resp.LifeSpan.End,
		Disambiguation: resp.Disambiguation,
		Tags:           tagNames(resp.Tags),
	}
}

// searchRelease runs an exact quoted query first; if that finds nothing
// and the album name carries edition noise, retries with a fuzzy unquoted
// query on the cleaned name.
func (c *Client) searchRelease(ctx context.Context, artistName, albumName string) ReleaseDetails {
	safeArtist := escapeLucene(artistName)
	safeAlbum := escapeLucene(albumName)

	mbid, title := c.doReleaseSearch(ctx, `release:"`+safeAlbum+`" AND artist:"`+safeArtist+`"`)
	if mbid == "" {
		if cleaned := cleanAlbumName(albumName); cleaned != albumName {
			query := fmt.Sprintf("release:%s AND artist:%s", escapeLucene(cleaned), safeArtist)
			mbid, title = c.doReleaseSearch(ctx, query)
		}
	}
	if mbid == "" {
		return ReleaseDetails{}
	}
	return c.fetchReleaseDetails(ctx, mbid, title)
}

func (c *Client) doReleaseSearch(ctx context.Context, query string) (mbid, title string) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "1")

	var resp releaseSearchResponse
	if !c.getJSON(ctx, "release", params, &resp) {
		return "", ""
	}
	if len(resp.Releases) == 0 {
		return "", ""
	}
	return resp.Releases[0].ID, resp.Releases[0].Title
}

func (c *Client) fetchReleaseDetails(ctx context.Context, mbid, title string) ReleaseDetails {
	params := url.Values{}
	params.Set("inc", "labels+media+release-groups+tags")

	var resp releaseResponse
	if !c.getJSON(ctx, "release/"+mbid, params, &resp) {
		return ReleaseDetails{MBID: mbid, Title: title}
	}

	details := ReleaseDetails{
		MBID:        mbid,
		Title:       title,
		ReleaseDate: identifier.ExtractYear(resp.Date),
		ReleaseType: resp.ReleaseGroup.PrimaryType,
		Country:     resp.Country,
		Barcode:     resp.Barcode,
		Tags:        tagNames(resp.Tags),
	}
	if details.Title == "" {
		details.Title = resp.Title
	}
	if len(resp.LabelInfo) > 0 {
		details.Label = resp.LabelInfo[0].Label.Name
	}
	if len(resp.Media) > 0 {
		details.MediaFormat = resp.Media[0].Format
	}
	return details
}

// getJSON performs a rate-limited GET with retries on transport failures
// (1s, 2s, 4s backoff). Returns false when no usable response was
// obtained.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) bool {
	params.Set("fmt", "json")
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
			c.log.Debug("MusicBrainz request failed (attempt %d/%d), retrying in %s: %v", attempt+1, maxAttempts, backoff, err)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		} else {
			c.log.Debug("MusicBrainz API request failed for %s: %v", endpoint, err)
		}
	}
	return false
}

func (c *Client) doOnce(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create musicbrainz request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("musicbrainz returned %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// albumNoiseRegexps match edition qualifiers and trailing bracketed text
// removed before the fuzzy release search.
var albumNoiseRegexps = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[.\s]*\([^)]*(?:deluxe|edition|version|remaster|bonus|expanded)[^)]*\)`),
	regexp.MustCompile(`(?i)\s*\[[^\]]*(?:deluxe|edition|version|remaster|bonus|expanded)[^\]]*\]`),
	regexp.MustCompile(`\s*[.\s]*\([^)]*\)\s*$`),
	regexp.MustCompile(`\s*\[[^\]]*\]\s*$`),
}

func cleanAlbumName(albumName string) string {
	cleaned := albumName
	for _, p := range albumNoiseRegexps {
		cleaned = p.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

const luceneSpecials = `+-&|!(){}[]^"~*?:\/<>`

// escapeLucene escapes characters that have meaning in Lucene queries.
func escapeLucene(text string) string {
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tagNames(tags []tagEntry) []string {
	var names []string
	for _, t := range tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
		if len(names) == 5 {
			break
		}
	}
	return names
}

// MusicBrainz API response types

type artistSearchResponse struct {
	Artists []artistResult `json:"artists"`
}

type artistResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type artistResponse struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Disambiguation string `json:"disambiguation"`
	Area           struct {
		Name string `json:"name"`
	} `json:"area"`
	LifeSpan struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
	} `json:"life-span"`
	Tags []tagEntry `json:"tags"`
}

type releaseSearchResponse struct {
	Releases []releaseResult `json:"releases"`
}

type releaseResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type releaseResponse struct {
	Title        string `json:"title"`
	Date         string `json:"date"`
	Country      string `json:"country"`
	Barcode      string `json:"barcode"`
	ReleaseGroup struct {
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
	LabelInfo []struct {
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		Format string `json:"format"`
	} `json:"media"`
	Tags []tagEntry `json:"tags"`
}

type tagEntry struct {
	Name string `json:"name"`
}
