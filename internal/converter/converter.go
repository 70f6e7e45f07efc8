// Package converter transcodes audio files to m4a with ffmpeg so the
// library serves a single streaming-friendly format. mp3 and m4a pass
// through untouched.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"tunevault/internal/logger"
)

const conversionTimeout = 5 * time.Minute

// NeedsConversion reports whether a file must be transcoded before upload.
func NeedsConversion(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".m4a":
		return false
	default:
		return true
	}
}

// Converter transcodes files into a mirror tree under convertedDir,
// preserving their path relative to musicDir.
type Converter struct {
	musicDir     string
	convertedDir string
	log          *logger.Logger
}

func New(musicDir, convertedDir string, log *logger.Logger) *Converter {
	return &Converter{musicDir: musicDir, convertedDir: convertedDir, log: log}
}

// ConvertToM4A transcodes path to AAC in an m4a container and returns
// the output path. An existing non-empty output is reused.
func (c *Converter) ConvertToM4A(ctx context.Context, path string) (string, error) {
	rel, err := filepath.Rel(c.musicDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	out := filepath.Join(c.convertedDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".m4a")

	if info, err := os.Stat(out); err == nil && info.Size() > 0 {
		c.log.Debug("Reusing converted file %s", out)
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, conversionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-vn",
		"-c:a", "aac",
		"-b:a", "256k",
		"-movflags", "+faststart",
		"-map_metadata", "0",
		"-y",
		out,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.log.Debug("Converting %s to m4a", filepath.Base(path))
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg failed for %s: %w\nDetails: %s", filepath.Base(path), err, tail(stderr.String(), 1024))
	}
	return out, nil
}

func tail(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
