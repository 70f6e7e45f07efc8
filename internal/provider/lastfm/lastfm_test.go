package lastfm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"tunevault/internal/cache"
	"tunevault/internal/catalog"
	"tunevault/internal/logger"
)

func newTestClient(url, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiURL:     url,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Inf, 1), // no throttling in tests
		log:        logger.New(false),
		albums:     cache.New[albumKey, catalog.AlbumInfo](),
	}
}

func TestEnabled(t *testing.T) {
	if newTestClient("http://unused", "").Enabled() {
		t.Error("client without API key must be disabled")
	}
	if !newTestClient("http://unused", "key").Enabled() {
		t.Error("client with API key must be enabled")
	}
}

func TestFetchAlbumInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "album.getinfo" {
			t.Errorf("method = %q", q.Get("method"))
		}
		if q.Get("autocorrect") != "1" {
			t.Error("expected autocorrect=1")
		}
		if q.Get("api_key") != "test-key" {
			t.Errorf("api_key = %q", q.Get("api_key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"album": {
			"name": "Reds",
			"image": [
				{"#text": "https://img.example.com/s.jpg", "size": "small"},
				{"#text": "https://img.example.com/xl.jpg", "size": "extralarge"},
				{"#text": "", "size": "mega"}
			],
			"wiki": {"summary": "Reds is a single by Mikky Ekko. <a href=\"https://last.fm/x\">Read more on Last.fm</a>."}
		}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "test-key")
	info := c.FetchAlbumInfo(context.Background(), "Mikky Ekko", "Reds")

	if info.Name != "Reds" {
		t.Errorf("Name = %q, want Reds", info.Name)
	}
	if info.Wiki != "Reds is a single by Mikky Ekko. ." {
		t.Errorf("Wiki = %q, want anchor stripped", info.Wiki)
	}
	// mega has an empty URL, so extralarge wins.
	if info.ImageURL != "https://img.example.com/xl.jpg" {
		t.Errorf("ImageURL = %q, want extralarge image", info.ImageURL)
	}
}

func TestFetchAlbumInfo_APIErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": 6, "message": "Album not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "test-key")
	info := c.FetchAlbumInfo(context.Background(), "Nobody", "Nothing")

	if !info.IsEmpty() {
		t.Errorf("expected empty info for API error, got %+v", info)
	}
	if calls != 1 {
		t.Errorf("API errors are definitive, want 1 call, got %d", calls)
	}
}

func TestFetchAlbumInfo_Disabled(t *testing.T) {
	c := newTestClient("http://unused", "")
	info := c.FetchAlbumInfo(context.Background(), "Mikky Ekko", "Reds")
	if !info.IsEmpty() {
		t.Errorf("disabled client must return empty info, got %+v", info)
	}
}

func TestFetchAlbumInfo_CachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"album": {"name": "Reds"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "test-key")
	c.FetchAlbumInfo(context.Background(), "Mikky Ekko", "Reds")
	c.FetchAlbumInfo(context.Background(), "Mikky Ekko", "Reds")
	if calls != 1 {
		t.Errorf("expected cached second lookup, got %d calls", calls)
	}
}

func TestBestImage(t *testing.T) {
	tests := []struct {
		name   string
		images []imageEntry
		want   string
	}{
		{
			name: "mega preferred",
			images: []imageEntry{
				{URL: "small.jpg", Size: "small"},
				{URL: "mega.jpg", Size: "mega"},
			},
			want: "mega.jpg",
		},
		{
			name: "skips empty urls",
			images: []imageEntry{
				{URL: "", Size: "mega"},
				{URL: "", Size: "extralarge"},
				{URL: "large.jpg", Size: "large"},
			},
			want: "large.jpg",
		},
		{
			name:   "no images",
			images: nil,
			want:   "",
		},
		{
			name: "all empty",
			images: []imageEntry{
				{URL: "", Size: "mega"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bestImage(tt.images); got != tt.want {
				t.Errorf("bestImage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanWikiText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{
			`Great album. <a href="https://last.fm/x">Read more on Last.fm</a>.`,
			"Great album. .",
		},
		{
			"Some <b>bold</b> text",
			"Some bold text",
		},
		{
			"spaced   out\n\ttext",
			"spaced out text",
		},
		{
			"plain",
			"plain",
		},
	}

	for _, tt := range tests {
		if got := cleanWikiText(tt.input); got != tt.want {
			t.Errorf("cleanWikiText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
