// Package reconciler ties document loading, coverage extraction and label
// matching together.
//
// Service is the entry point for both halves of the workflow:
//   - ExtractDocument / ExtractFile turn a policy document into a
//     DocumentInfo (issuer, product, premium, coverages)
//   - Reconcile matches a coverage list against template labels
//
// ProcessBatch runs both for several documents in parallel, one document per
// worker, and reports progress as documents finish.
//
// Example usage:
//
//	service, err := reconciler.NewService(nil, nil)
//	info, err := service.ExtractFile(ctx, "policy.pdf")
//	report := service.Reconcile(info.Coverages, targets, matcher.DefaultThreshold)
package reconciler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/extractor"
	"insurance-coverage-reconciler/internal/matcher"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// MaxConcurrentDocuments bounds the number of documents extracted at once
	MaxConcurrentDocuments int `json:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`

	// DocumentTimeout abandons a single document's extraction; zero means
	// no limit
	DocumentTimeout time.Duration `json:"document_timeout" mapstructure:"document_timeout"`

	// ProgressReporting enables progress logging for batches
	ProgressReporting bool `json:"progress_reporting" mapstructure:"progress_reporting"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentDocuments: 4,
		DocumentTimeout:        2 * time.Minute,
		ProgressReporting:      true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentDocuments <= 0 {
		return fmt.Errorf("max concurrent documents must be positive, got %d", c.MaxConcurrentDocuments)
	}
	if c.DocumentTimeout < 0 {
		return fmt.Errorf("document timeout cannot be negative, got %v", c.DocumentTimeout)
	}
	return nil
}

// Service extracts and reconciles policy documents. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	loader    document.Loader
	extractor *extractor.Extractor
	engine    *matcher.Engine
	config    *Config
	logger    logger.Logger
}

// Option customises a Service
type Option func(*Service)

// WithLoader replaces the document loader
func WithLoader(loader document.Loader) Option {
	return func(s *Service) {
		s.loader = loader
	}
}

// WithLogger sets the logger used by the service and its extractor
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// NewService creates a reconciliation service. A nil engine uses the
// built-in rules and a nil config uses DefaultConfig.
func NewService(engine *matcher.Engine, config *Config, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config, err)
	}
	if engine == nil {
		engine = matcher.NewEngine(nil)
	}

	s := &Service{
		loader: document.NewMultiLoader(),
		engine: engine,
		config: config,
		logger: logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("reconciler")
	s.extractor = extractor.New(s.logger)

	return s, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// Engine returns the matching engine
func (s *Service) Engine() *matcher.Engine {
	return s.engine
}

// ExtractDocument extracts issuer, product, premium and coverages from an
// opened document.
func (s *Service) ExtractDocument(ctx context.Context, doc *document.Document) (*models.DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.extractor.ExtractDocument(doc)
}

// ExtractFile opens and extracts the document at path
func (s *Service) ExtractFile(ctx context.Context, path string) (*models.DocumentInfo, error) {
	ctx, cancel := s.documentContext(ctx)
	defer cancel()

	doc, err := document.Open(ctx, s.loader, path)
	if err != nil {
		return nil, err
	}
	return s.ExtractDocument(ctx, doc)
}

// ExtractReader loads a document from r and extracts it. The name selects
// the loader by extension.
func (s *Service) ExtractReader(ctx context.Context, name string, r io.ReadSeeker) (*models.DocumentInfo, error) {
	ctx, cancel := s.documentContext(ctx)
	defer cancel()

	doc, err := s.loader.Load(ctx, name, r)
	if err != nil {
		return nil, err
	}
	return s.ExtractDocument(ctx, doc)
}

// ExtractBytes extracts an in-memory document
func (s *Service) ExtractBytes(ctx context.Context, name string, data []byte) (*models.DocumentInfo, error) {
	return s.ExtractReader(ctx, name, bytes.NewReader(data))
}

// Reconcile matches coverages against template labels. The threshold is
// accepted for callers that pass one; rule-based matching ignores it.
func (s *Service) Reconcile(coverages []models.RawCoverageItem, targets []models.TargetLabel, threshold float64) *models.ReconciliationReport {
	report := s.engine.Match(coverages, targets)

	summary := report.Summary()
	s.logger.WithFields(logger.Fields{
		"targets":           len(targets),
		"matched":           summary.MatchedTargets,
		"unmatched_targets": summary.UnmatchedTargets,
		"unmatched_raw":     summary.UnmatchedRaw,
		"threshold":         threshold,
	}).Debug("Coverages reconciled")

	return report
}

func (s *Service) documentContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.DocumentTimeout > 0 {
		return context.WithTimeout(ctx, s.config.DocumentTimeout)
	}
	return context.WithCancel(ctx)
}
