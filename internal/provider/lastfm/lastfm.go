// Package lastfm is the fallback statistics client. It is consulted only
// when the free-text provider returns an essentially empty album, and
// contributes a cleaned description and the largest available image.
package lastfm

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
	"tunevault/internal/catalog"
	"tunevault/internal/logger"
)

const (
	defaultAPIURL = "https://ws.audioscrobbler.com/2.0/"

	// Last.fm allows ~5 req/s; 250ms keeps a safety margin.
	minRequestInterval = 250 * time.Millisecond

	maxAttempts = 3
)

// ImageStore persists a fetched album image and returns its public URL.
// Nil means the provider's own URL is used directly.
type ImageStore interface {
	DownloadAndUploadAlbumImage(ctx context.Context, imageURL, artist, album string) string
}

type albumKey struct {
	Artist string
	Album  string
}

// Client is a rate-limited Last.fm client. Disabled without an API key.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	store      ImageStore
	limiter    *rate.Limiter
	log        *logger.Logger

	albums *cache.Cache[albumKey, catalog.AlbumInfo]
}

// New creates a Last.fm client. store may be nil.
func New(apiKey string, store ImageStore, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiURL:     defaultAPIURL,
		apiKey:     apiKey,
		store:      store,
		limiter:    rate.NewLimiter(rate.Every(minRequestInterval), 1),
		log:        log,
		albums:     cache.New[albumKey, catalog.AlbumInfo](),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// FetchAlbumInfo fetches album metadata by name with provider-side
// autocorrection. Results, including misses, are cached per pair.
func (c *Client) FetchAlbumInfo(ctx context.Context, artistName, albumName string) catalog.AlbumInfo {
	if !c.Enabled() {
		return catalog.AlbumInfo{}
	}

	key := albumKey{Artist: artistName, Album: albumName}
	if cached, ok := c.albums.Get(key); ok {
		return cached
	}

	var result catalog.AlbumInfo

	params := url.Values{}
	params.Set("artist", artistName)
	params.Set("album", albumName)
	params.Set("autocorrect", "1")

	var resp albumInfoResponse
	if c.getJSON(ctx, "album.getinfo", params, &resp) && resp.Album != nil {
		album := resp.Album

		result.Name = album.Name
		if summary := album.Wiki.Summary; summary != "" {
			result.Wiki = cleanWikiText(summary)
		}

		// Last.fm tags are user-generated; they are not mapped to genre.

		if imageURL := bestImage(album.Images); imageURL != "" {
			if c.store != nil {
				result.ImageURL = c.store.DownloadAndUploadAlbumImage(ctx, imageURL, artistName, albumName)
			} else {
				result.ImageURL = imageURL
			}
		}

		c.log.Debug("Last.fm found album %q by %q", albumName, artistName)
	}

	c.albums.Set(key, result)
	return result
}

// imageSizePriority orders Last.fm image sizes from best to worst.
var imageSizePriority = []string{"mega", "extralarge", "large", "medium", "small"}

// bestImage picks the highest-resolution image, skipping size entries
// whose URL is empty.
func bestImage(images []imageEntry) string {
	if len(images) == 0 {
		return ""
	}
	bySize := make(map[string]string, len(images))
	for _, img := range images {
		if img.Size != "" && img.URL != "" {
			bySize[img.Size] = img.URL
		}
	}
	for _, size := range imageSizePriority {
		if u := bySize[size]; u != "" {
			return u
		}
	}
	return ""
}

var (
	anchorTagPattern = regexp.MustCompile(`<a\s+[^>]*>.*?</a>`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
)

// cleanWikiText strips "Read more" anchors and remaining HTML tags and
// collapses whitespace.
func cleanWikiText(text string) string {
	text = anchorTagPattern.ReplaceAllString(text, "")
	text = htmlTagPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// getJSON performs a rate-limited GET with retries on transport failures.
// An API-level error body is a definitive no-result and is not retried.
func (c *Client) getJSON(ctx context.Context, method string, params url.Values, out *albumInfoResponse) bool {
	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.apiURL + "?" + params.Encode()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}

		apiErr, err := c.doOnce(ctx, reqURL, out)
		if err == nil {
			if apiErr != "" {
				c.log.Debug("Last.fm API error: %s", apiErr)
				return false
			}
			return true
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(1<<attempt) * time.Second
			c.log.Debug("Last.fm request failed (attempt %d/%d), retrying in %s: %v", attempt+1, maxAttempts, backoff, err)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		} else {
			c.log.Debug("Last.fm API request failed for %s: %v", method, err)
		}
	}
	return false
}

// doOnce returns (apiError, transportError). apiError is set when the
// provider answered with a semantic error payload.
func (c *Client) doOnce(ctx context.Context, reqURL string, out *albumInfoResponse) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create lastfm request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lastfm returned %d: %s", resp.StatusCode, truncate(body, 512))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("failed to decode lastfm response: %w", err)
	}
	if out.Error != 0 {
		msg := out.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return msg, nil
	}
	return "", nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// Last.fm API response types

type albumInfoResponse struct {
	Album   *albumPayload `json:"album"`
	Error   int           `json:"error"`
	Message string        `json:"message"`
}

type albumPayload struct {
	Name   string       `json:"name"`
	Images []imageEntry `json:"image"`
	Wiki   struct {
		Summary string `json:"summary"`
	} `json:"wiki"`
}

type imageEntry struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}
