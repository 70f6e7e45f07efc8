package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains the program configuration. Credentials come from the
// environment (optionally via a .env file); everything else from YAML.
type Config struct {
	MusicDir     string `yaml:"music_dir"`
	ConvertedDir string `yaml:"converted_dir"`
	CatalogFile  string `yaml:"catalog_file"`
	Verbose      bool   `yaml:"verbose"`
	DryRun       bool   `yaml:"dry_run"`
	Workers      int    `yaml:"workers"`

	SpacesKey      string `yaml:"-"`
	SpacesSecret   string `yaml:"-"`
	SpacesBucket   string `yaml:"spaces_bucket"`
	SpacesRegion   string `yaml:"spaces_region"`
	SpacesEndpoint string `yaml:"spaces_endpoint"`
	SpacesPrefix   string `yaml:"spaces_prefix"`

	LastFMAPIKey string `yaml:"-"`

	MusicBrainzEnabled   bool   `yaml:"musicbrainz_enabled"`
	MusicBrainzUserAgent string `yaml:"musicbrainz_user_agent"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MusicDir:             filepath.Join(homeDir(), "Music"),
		ConvertedDir:         filepath.Join(homeDir(), "Music", ".converted"),
		CatalogFile:          "music-catalog.json",
		Workers:              4,
		SpacesRegion:         "nyc3",
		MusicBrainzEnabled:   true,
		MusicBrainzUserAgent: "tunevault/1.0 (https://github.com/afalzone/tunevault)",
	}
}

// LoadConfigFile loads configuration from a YAML file plus the
// environment. If path is empty, searches standard locations. Returns
// defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.MusicDir = ExpandHome(cfg.MusicDir)
	cfg.ConvertedDir = ExpandHome(cfg.ConvertedDir)

	cfg.loadEnv()
	return cfg, nil
}

// loadEnv reads credentials from a .env file next to the working
// directory (if present) and the process environment. Environment wins.
func (c *Config) loadEnv() {
	// Missing .env is fine, env vars may be set directly.
	_ = godotenv.Load()

	c.SpacesKey = os.Getenv("SPACES_KEY")
	c.SpacesSecret = os.Getenv("SPACES_SECRET")
	if v := os.Getenv("SPACES_BUCKET"); v != "" {
		c.SpacesBucket = v
	}
	if v := os.Getenv("SPACES_REGION"); v != "" {
		c.SpacesRegion = v
	}
	if v := os.Getenv("SPACES_ENDPOINT"); v != "" {
		c.SpacesEndpoint = v
	}
	if v := os.Getenv("SPACES_PREFIX"); v != "" {
		c.SpacesPrefix = v
	}
	c.LastFMAPIKey = os.Getenv("LASTFM_API_KEY")
	if v := os.Getenv("MUSICBRAINZ_USER_AGENT"); v != "" {
		c.MusicBrainzUserAgent = v
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./tunevault.yaml",
		"./tunevault.yml",
		filepath.Join(home, ".config", "tunevault", "config.yaml"),
		filepath.Join(home, ".config", "tunevault", "config.yml"),
		filepath.Join(home, ".tunevault.yaml"),
		filepath.Join(home, ".tunevault.yml"),
	}

	for _, path := range locations {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "tunevault", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "tunevault", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MusicDir == "" {
		return fmt.Errorf("music_dir cannot be empty")
	}
	if info, err := os.Stat(c.MusicDir); err != nil || !info.IsDir() {
		return fmt.Errorf("music_dir %s is not a readable directory", c.MusicDir)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Workers > 16 {
		return fmt.Errorf("workers cannot exceed 16 (to avoid rate limiting), got %d", c.Workers)
	}

	if c.CatalogFile == "" {
		return fmt.Errorf("catalog_file cannot be empty")
	}

	// DryRun needs no credentials: nothing is uploaded.
	if c.DryRun {
		return nil
	}

	if c.SpacesKey == "" || c.SpacesSecret == "" {
		return fmt.Errorf("SPACES_KEY and SPACES_SECRET must be set (in the environment or a .env file)")
	}
	if c.SpacesBucket == "" {
		return fmt.Errorf("spaces bucket cannot be empty")
	}
	if c.SpacesRegion == "" {
		return fmt.Errorf("spaces region cannot be empty")
	}

	return nil
}
