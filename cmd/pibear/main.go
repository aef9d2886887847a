// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package main

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/logger"
)

//go:embed workspace
var embeddedFiles embed.FS

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "pibear"

// configPathOverride is set by the root --config flag.
var configPathOverride string

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	if strings.TrimSpace(configPathOverride) != "" {
		return configPathOverride
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pibear", "config.json")
}

// loadConfig reads .env files from the working directory and the config
// directory, then the JSON config, then applies log settings.
func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	for _, dir := range []string{".", filepath.Dir(configPath)} {
		if err := config.LoadDotEnv(dir); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, debug bool) {
	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(parseLogLevel(cfg.Log.Level))
	}
	if strings.TrimSpace(cfg.Log.File) == "" {
		return
	}
	if err := logger.EnableFileLogging(cfg.ResolvePath(cfg.Log.File)); err != nil {
		logger.WarnCF("main", "File logging disabled", map[string]interface{}{"error": err.Error()})
	}
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG
	case "warn", "warning":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// copyEmbeddedToTarget writes the workspace templates into targetDir. Files
// that already exist are left alone and reported as skipped.
func copyEmbeddedToTarget(targetDir string) (written, skipped []string, err error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create workspace: %w", err)
	}

	err = fs.WalkDir(embeddedFiles, "workspace", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel("workspace", path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		target := filepath.Join(targetDir, rel)
		if _, err := os.Stat(target); err == nil {
			skipped = append(skipped, rel)
			return nil
		}

		data, err := embeddedFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		written = append(written, rel)
		return nil
	})
	return written, skipped, err
}
