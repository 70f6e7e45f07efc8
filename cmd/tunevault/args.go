package main

import (
	"fmt"
	"os"

	"tunevault/internal/config"
)

// parseArgs parses command-line arguments and loads configuration.
// Priority: CLI flags > environment > config file > defaults
func parseArgs() (config.Config, string, error) {
	args := os.Args[1:]

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printUsage()
			os.Exit(0)
		}
		if arg == "--init-config" {
			return config.Config{}, "", initConfigFile()
		}
	}

	var configPath string
	var cfg config.Config
	var err error

	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			if i+1 >= len(args) {
				return config.Config{}, "", fmt.Errorf("--config requires a path argument")
			}
			configPath = args[i+1]
			break
		}
	}

	cfg, err = config.LoadConfigFile(configPath)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("failed to load config: %w", err)
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--verbose", "-v":
			cfg.Verbose = true

		case "--dry-run", "-n":
			cfg.DryRun = true

		case "--workers", "-w":
			if i+1 >= len(args) {
				return config.Config{}, "", fmt.Errorf("--workers requires a number argument")
			}
			i++
			var workers int
			if _, err := fmt.Sscanf(args[i], "%d", &workers); err != nil {
				return config.Config{}, "", fmt.Errorf("invalid workers value: %s", args[i])
			}
			cfg.Workers = workers

		case "--music-dir", "-m":
			if i+1 >= len(args) {
				return config.Config{}, "", fmt.Errorf("--music-dir requires a path argument")
			}
			i++
			cfg.MusicDir = config.ExpandHome(args[i])

		case "--config", "-c":
			i++

		default:
			return config.Config{}, "", fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return cfg, configPath, nil
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := config.GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		os.Exit(0)
	}

	cfg := config.DefaultConfig()

	if err := config.SaveConfigFile(cfg, path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nYou can now edit this file to customize your settings.")
	fmt.Println("Available options:")
	fmt.Println("  music_dir: path to your local music library")
	fmt.Println("  catalog_file: output path for the generated catalog JSON")
	fmt.Println("  workers: 1-16 (number of parallel workers)")
	fmt.Println("  spaces_bucket / spaces_region: object storage location")
	fmt.Println("  musicbrainz_enabled: true/false")
	fmt.Println("\nCredentials are read from the environment (or a .env file):")
	fmt.Println("  SPACES_KEY, SPACES_SECRET, LASTFM_API_KEY")

	os.Exit(0)
	return nil
}

// printUsage displays the help message
func printUsage() {
	fmt.Println("tunevault - Upload a music library to DigitalOcean Spaces and build a streaming catalog")
	fmt.Println()
	fmt.Println("Usage: tunevault [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose              Show detailed output")
	fmt.Println("  -n, --dry-run              Scan and build the catalog without uploading")
	fmt.Println("  -w, --workers <n>          Number of parallel workers (1-16, default: 4)")
	fmt.Println("  -m, --music-dir <path>     Music library directory")
	fmt.Println("  -c, --config <path>        Path to config file")
	fmt.Println("  -h, --help                 Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  --init-config              Create a default config file")
	fmt.Println()
	fmt.Println("Config file locations (checked in order):")
	fmt.Println("  ./tunevault.yaml")
	fmt.Println("  ~/.config/tunevault/config.yaml")
	fmt.Println("  ~/.tunevault.yaml")
	fmt.Println()
	fmt.Println("Credentials (environment or .env file):")
	fmt.Println("  SPACES_KEY, SPACES_SECRET    Spaces access credentials")
	fmt.Println("  SPACES_BUCKET, SPACES_REGION Bucket overrides")
	fmt.Println("  LASTFM_API_KEY               Enables the Last.fm fallback")
	fmt.Println("  MUSICBRAINZ_USER_AGENT       Custom MusicBrainz user agent")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Preview the catalog without uploading anything")
	fmt.Println("  tunevault --dry-run")
	fmt.Println()
	fmt.Println("  # Upload with defaults (progress bar + file logging)")
	fmt.Println("  tunevault")
	fmt.Println()
	fmt.Println("  # Upload with 8 workers and verbose output")
	fmt.Println("  tunevault -w 8 -v")
	fmt.Println()
	fmt.Println("  # Create a config file to persist settings")
	fmt.Println("  tunevault --init-config")
}
