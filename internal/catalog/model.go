// Package catalog defines the catalog data model and the builder that
// reconciles locally extracted track metadata against the external
// providers into a hierarchical artist/album/track catalog.
package catalog

// Track is one physical audio file. The JSON field names are a
// compatibility contract with the presentation layer and must not change.
// Optional fields are pointers so absent values serialize as null.
type Track struct {
	Title              string   `json:"title"`
	Artist             *string  `json:"artist"`
	Album              *string  `json:"album"`
	AlbumArtist        *string  `json:"album_artist"`
	TrackNumber        *int     `json:"track_number"`
	TrackTotal         *int     `json:"track_total"`
	DiscNumber         *int     `json:"disc_number"`
	DiscTotal          *int     `json:"disc_total"`
	Duration           *int     `json:"duration"`
	Year               *int     `json:"year"`
	Genre              *string  `json:"genre"`
	Style              *string  `json:"style"`
	Mood               *string  `json:"mood"`
	Theme              *string  `json:"theme"`
	Composer           *string  `json:"composer"`
	Comment            *string  `json:"comment"`
	Bitrate            *float64 `json:"bitrate"`
	SampleRate         *int     `json:"samplerate"`
	Channels           *int     `json:"channels"`
	FileSize           *int64   `json:"filesize"`
	Format             string   `json:"format"`
	OriginalFormat     string   `json:"original_format"`
	StorageKey         string   `json:"s3_key"`
	URL                *string  `json:"url"`
	EmbeddedArtworkURL *string  `json:"embedded_artwork_url"`
	AlbumImageURL      *string  `json:"album_image_url"`
}

// ArtistInfo is the enrichment snapshot for one artist name from the
// free-text catalog provider. Empty strings mean "no data".
type ArtistInfo struct {
	Bio      string
	ImageURL string
	Genre    string
	Style    string
	Mood     string
}

// AlbumInfo is the enrichment snapshot for one (artist, album) pair.
// Name, when set, is the provider's canonical album name and overrides
// the locally derived one.
type AlbumInfo struct {
	ImageURL    string
	Wiki        string
	ReleaseDate int
	Genre       string
	Style       string
	Mood        string
	Theme       string
	Name        string
}

// IsEmpty reports whether the provider returned nothing usable: no image,
// no description and no genre. Used to decide whether the fallback
// statistics provider should be consulted.
func (a AlbumInfo) IsEmpty() bool {
	return a.ImageURL == "" && a.Wiki == "" && a.Genre == ""
}

// Merge fills gaps in a with values from fallback. Existing values are
// never overwritten.
func (a AlbumInfo) Merge(fallback AlbumInfo) AlbumInfo {
	merged := AlbumInfo{
		ImageURL:    firstNonEmpty(a.ImageURL, fallback.ImageURL),
		Wiki:        firstNonEmpty(a.Wiki, fallback.Wiki),
		ReleaseDate: a.ReleaseDate,
		Genre:       firstNonEmpty(a.Genre, fallback.Genre),
		Style:       firstNonEmpty(a.Style, fallback.Style),
		Mood:        firstNonEmpty(a.Mood, fallback.Mood),
		Theme:       firstNonEmpty(a.Theme, fallback.Theme),
		Name:        firstNonEmpty(a.Name, fallback.Name),
	}
	if merged.ReleaseDate == 0 {
		merged.ReleaseDate = fallback.ReleaseDate
	}
	return merged
}

// TrackInfo is the lookup result for a single (artist, title) pair. The
// album field is used only as a last-resort album-name source.
type TrackInfo struct {
	Name  string
	Album string
	Genre string
	Style string
	Mood  string
	Theme string
}

// Album is one album node in the catalog.
type Album struct {
	Name        string   `json:"name"`
	ImageURL    *string  `json:"image_url"`
	Wiki        *string  `json:"wiki"`
	ReleaseDate *int     `json:"release_date"`
	Genre       *string  `json:"genre"`
	Style       *string  `json:"style"`
	Mood        *string  `json:"mood"`
	Theme       *string  `json:"theme"`
	Tracks      []*Track `json:"tracks"`
	ReleaseType *string  `json:"release_type"`
	Country     *string  `json:"country"`
	Label       *string  `json:"label"`
	Barcode     *string  `json:"barcode"`
	MediaFormat *string  `json:"media_format"`
}

// Artist is one artist node in the catalog.
type Artist struct {
	Name           string   `json:"name"`
	Bio            *string  `json:"bio"`
	ImageURL       *string  `json:"image_url"`
	Genre          *string  `json:"genre"`
	Style          *string  `json:"style"`
	Mood           *string  `json:"mood"`
	Albums         []*Album `json:"albums"`
	ArtistType     *string  `json:"artist_type"`
	Area           *string  `json:"area"`
	BeginDate      *string  `json:"begin_date"`
	EndDate        *string  `json:"end_date"`
	Disambiguation *string  `json:"disambiguation"`
}

// Catalog is the root aggregate. TotalTracks counts the tracks that went
// into the build, before per-album deduplication.
type Catalog struct {
	Artists     []*Artist `json:"artists"`
	TotalTracks int       `json:"total_tracks"`
	GeneratedAt string    `json:"generated_at"`
}

// OptString returns a pointer to s, or nil if s is empty.
func OptString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// OptInt returns a pointer to n, or nil if n is zero.
func OptInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// OptInt64 returns a pointer to n, or nil if n is zero.
func OptInt64(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

// OptFloat returns a pointer to f, or nil if f is zero.
func OptFloat(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
