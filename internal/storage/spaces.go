// Package storage uploads files and artwork to a DigitalOcean Spaces
// bucket (S3-compatible) and exposes CDN URLs for everything it stores.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tunevault/internal/identifier"
	"tunevault/internal/logger"
)

const (
	uploadAttempts = 3

	// Remote images larger than this are skipped rather than mirrored.
	maxImageSize = 10 << 20
)

// Config holds Spaces credentials and bucket layout.
type Config struct {
	Key      string
	Secret   string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// Spaces is a client for one bucket. Safe for concurrent use.
type Spaces struct {
	client *minio.Client
	http   *http.Client
	cfg    Config
	log    *logger.Logger

	mu       sync.Mutex
	existing map[string]struct{}
}

// New connects to the configured Spaces endpoint.
func New(cfg Config, log *logger.Logger) (*Spaces, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", cfg.Region)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Key, cfg.Secret, ""),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create spaces client: %w", err)
	}

	return &Spaces{
		client: client,
		http:   &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		log:    log,
	}, nil
}

// PrimeExistingKeys lists every object under the configured prefix so
// later existence checks avoid per-key round trips.
func (s *Spaces) PrimeExistingKeys(ctx context.Context) error {
	keys := make(map[string]struct{})
	opts := minio.ListObjectsOptions{
		Prefix:    s.prefixed(""),
		Recursive: true,
	}
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, opts) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list bucket %s: %w", s.cfg.Bucket, obj.Err)
		}
		keys[strings.TrimPrefix(obj.Key, s.prefixed(""))] = struct{}{}
	}

	s.mu.Lock()
	s.existing = keys
	s.mu.Unlock()

	s.log.Debug("Primed %d existing object keys", len(keys))
	return nil
}

// Exists reports whether a key is already in the bucket. Uses the primed
// listing when available, otherwise stats the object directly.
func (s *Spaces) Exists(ctx context.Context, key string) bool {
	s.mu.Lock()
	if s.existing != nil {
		_, ok := s.existing[key]
		s.mu.Unlock()
		return ok
	}
	s.mu.Unlock()

	_, err := s.client.StatObject(ctx, s.cfg.Bucket, s.prefixed(key), minio.StatObjectOptions{})
	return err == nil
}

// PublicURL returns the CDN URL for a stored key.
func (s *Spaces) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", s.cfg.Bucket, s.cfg.Region, s.prefixed(key))
}

// UploadFile uploads a local file and returns its public URL.
func (s *Spaces) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType:  contentTypeForPath(localPath),
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	}

	var lastErr error
	for attempt := 0; attempt < uploadAttempts; attempt++ {
		_, err := s.client.FPutObject(ctx, s.cfg.Bucket, s.prefixed(key), localPath, opts)
		if err == nil {
			s.markUploaded(key)
			return s.PublicURL(key), nil
		}
		lastErr = err

		if attempt < uploadAttempts-1 {
			backoff := time.Duration(2<<attempt) * time.Second
			s.log.Warn("Upload of %s failed (attempt %d/%d), retrying in %s: %v", key, attempt+1, uploadAttempts, backoff, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("failed to upload %s after %d attempts: %w", key, uploadAttempts, lastErr)
}

// UploadBytes stores a blob under key unless it already exists, and
// returns the public URL either way.
func (s *Spaces) UploadBytes(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if s.Exists(ctx, key) {
		return s.PublicURL(key), nil
	}

	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	}

	var lastErr error
	for attempt := 0; attempt < uploadAttempts; attempt++ {
		_, err := s.client.PutObject(ctx, s.cfg.Bucket, s.prefixed(key), bytes.NewReader(data), int64(len(data)), opts)
		if err == nil {
			s.markUploaded(key)
			return s.PublicURL(key), nil
		}
		lastErr = err

		if attempt < uploadAttempts-1 {
			backoff := time.Duration(2<<attempt) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("failed to upload %s after %d attempts: %w", key, uploadAttempts, lastErr)
}

// UploadCatalog replaces the catalog JSON at key. The old object is
// removed first and aggressive no-cache headers are set so CDN edges do
// not serve a stale library.
func (s *Spaces) UploadCatalog(ctx context.Context, localPath, key string) (string, error) {
	_ = s.client.RemoveObject(ctx, s.cfg.Bucket, s.prefixed(key), minio.RemoveObjectOptions{})

	opts := minio.PutObjectOptions{
		ContentType:  "application/json",
		CacheControl: "no-cache, no-store, must-revalidate",
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	}
	if _, err := s.client.FPutObject(ctx, s.cfg.Bucket, s.prefixed(key), localPath, opts); err != nil {
		return "", fmt.Errorf("failed to upload catalog: %w", err)
	}
	return s.PublicURL(key), nil
}

// DownloadAndUploadAlbumImage mirrors a provider-hosted album image into
// the bucket and returns its CDN URL. Returns "" on any failure; artwork
// is always best-effort.
func (s *Spaces) DownloadAndUploadAlbumImage(ctx context.Context, imageURL, artist, album string) string {
	key := fmt.Sprintf("%s/%s/cover.jpg", identifier.SanitizeStorageKey(artist, "Unknown"), identifier.SanitizeStorageKey(album, "Unknown"))
	return s.mirrorImage(ctx, imageURL, key)
}

// DownloadAndUploadArtistImage mirrors an artist portrait into the bucket.
func (s *Spaces) DownloadAndUploadArtistImage(ctx context.Context, imageURL, artist string) string {
	key := fmt.Sprintf("%s/artist.jpg", identifier.SanitizeStorageKey(artist, "Unknown"))
	return s.mirrorImage(ctx, imageURL, key)
}

// UploadArtworkBytes stores artwork extracted from an audio file itself.
func (s *Spaces) UploadArtworkBytes(ctx context.Context, data []byte, mimeType, artist, album string) string {
	ext := "jpg"
	if strings.Contains(mimeType, "png") {
		ext = "png"
	}
	key := fmt.Sprintf("%s/%s/embedded.%s", identifier.SanitizeStorageKey(artist, "Unknown"), identifier.SanitizeStorageKey(album, "Unknown"), ext)

	url, err := s.UploadBytes(ctx, data, key, mimeType)
	if err != nil {
		s.log.Warn("Failed to upload embedded artwork for %s/%s: %v", artist, album, err)
		return ""
	}
	return url
}

func (s *Spaces) mirrorImage(ctx context.Context, imageURL, key string) string {
	if s.Exists(ctx, key) {
		return s.PublicURL(key)
	}

	data, contentType, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		s.log.Debug("Skipping image %s: %v", imageURL, err)
		return ""
	}

	url, err := s.UploadBytes(ctx, data, key, contentType)
	if err != nil {
		s.log.Warn("Failed to upload image %s: %v", key, err)
		return ""
	}
	return url
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

func (s *Spaces) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedImageTypes[contentType] {
		return nil, "", fmt.Errorf("unsupported image type %q", contentType)
	}
	if resp.ContentLength > maxImageSize {
		return nil, "", fmt.Errorf("image too large (%d bytes)", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("image too large (%d bytes)", len(data))
	}
	return data, contentType, nil
}

func (s *Spaces) markUploaded(key string) {
	s.mu.Lock()
	if s.existing != nil {
		s.existing[key] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Spaces) prefixed(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + key
}

func contentTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".aac":
		return "audio/aac"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
