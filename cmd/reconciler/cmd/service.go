package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/cmd/reconciler/config"
	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/matcher"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/pkg/logger"
)

func init() {
	viper.SetDefault("matching.threshold", matcher.DefaultThreshold)
	viper.SetDefault("reconciler.document_timeout", 2*time.Minute)
	viper.SetDefault("archive.enabled", true)
	viper.SetDefault("archive.path", archive.DefaultConfig().Path)
}

// newService builds the reconciliation service from the matching and
// reconciler settings in viper
func newService(showProgress bool) (*reconciler.Service, error) {
	matchingConfig, err := config.CreateMatchingConfig(
		viper.GetString("matching.rules_file"),
		viper.GetFloat64("matching.threshold"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create matching config: %w", err)
	}

	engine, err := matcher.NewEngineFromConfig(matchingConfig)
	if err != nil {
		return nil, err
	}

	reconcilerConfig, err := config.CreateReconcilerConfig(
		viper.GetInt("reconciler.max_concurrent_documents"),
		viper.GetDuration("reconciler.document_timeout"),
		showProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler config: %w", err)
	}

	return reconciler.NewService(engine, reconcilerConfig, reconciler.WithLogger(logger.GetGlobalLogger()))
}

// openArchive opens the run archive, or returns nil when it is disabled
func openArchive() (*archive.Store, error) {
	archiveConfig, err := config.CreateArchiveConfig(viper.GetBool("archive.enabled"), viper.GetString("archive.path"))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive config: %w", err)
	}
	if !archiveConfig.Enabled {
		return nil, nil
	}
	return archive.Open(archiveConfig.Path)
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func progressCallback(bar *progressbar.ProgressBar) reconciler.ProgressCallback {
	return func(done, total int, result reconciler.DocumentResult) {
		if err := bar.Add(1); err != nil {
			logger.GetGlobalLogger().WithError(err).Debug("Failed to update progress bar")
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

var documentExtensions = map[string]bool{".pdf": true, ".json": true}

func validateDocuments(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("at least one document is required")
	}
	for i, p := range paths {
		if err := validateFileExists(p, fmt.Sprintf("document %d", i+1)); err != nil {
			return err
		}
		if ext := strings.ToLower(filepath.Ext(p)); !documentExtensions[ext] {
			return fmt.Errorf("unsupported document type '%s': %s (expected .pdf or .json)", ext, p)
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func validateOutputDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("output directory does not exist: %s", dir)
	}
	return nil
}

// openOutput returns stdout for an empty path
func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
