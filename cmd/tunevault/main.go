package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tunevault/internal/config"
	"tunevault/internal/logger"
	"tunevault/internal/shutdown"
	"tunevault/internal/storage"
	"tunevault/internal/uploader"
	"tunevault/pkg/utils"
)

func main() {
	cfg, configPath, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}

	sh := shutdown.New()
	sh.Listen()
	defer sh.Wait()

	log := logger.New(cfg.Verbose)
	defer log.Close()

	// Interrupt messages should not be swallowed by bar suppression.
	sh.AddCleanup(func() { log.SetProgressBar(false) })

	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("tunevault_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if cfg.Verbose && configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	if err := run(sh, cfg, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run(sh *shutdown.Handler, cfg config.Config, log *logger.Logger) error {
	log.Debug("Checking dependencies...")
	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}

	var store *storage.Spaces
	if !cfg.DryRun {
		var err error
		store, err = storage.New(storage.Config{
			Key:      cfg.SpacesKey,
			Secret:   cfg.SpacesSecret,
			Bucket:   cfg.SpacesBucket,
			Region:   cfg.SpacesRegion,
			Endpoint: cfg.SpacesEndpoint,
			Prefix:   cfg.SpacesPrefix,
		}, log)
		if err != nil {
			return err
		}
	}

	up := uploader.New(cfg, store, log)
	if _, err := up.Run(sh.Context()); err != nil {
		return err
	}

	log.Info("=== Process completed successfully ===")
	return nil
}
