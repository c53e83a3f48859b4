package reconciler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

// DocumentInput is one document of a batch: a file path, or in-memory
// content with the name it was uploaded under.
type DocumentInput struct {
	Name string
	Path string
	Data []byte
}

// DisplayName returns the name used in results and logs
func (in DocumentInput) DisplayName() string {
	if in.Name != "" {
		return in.Name
	}
	return filepath.Base(in.Path)
}

// BatchRequest asks for several documents to be extracted and reconciled
// against one target list.
type BatchRequest struct {
	Documents []DocumentInput
	Targets   []models.TargetLabel
	Threshold float64
}

// Validate validates the batch request
func (r *BatchRequest) Validate() error {
	if len(r.Documents) == 0 {
		return fmt.Errorf("at least one document is required")
	}
	for i, d := range r.Documents {
		if d.Path == "" && d.Data == nil {
			return fmt.Errorf("document %d has neither a path nor content", i+1)
		}
	}
	return nil
}

// DocumentResult is the outcome for one document. Err is set when the
// document could not be read or extracted; the rest of the batch is not
// affected.
type DocumentResult struct {
	Index    int                          `json:"index"`
	Name     string                       `json:"name"`
	Info     *models.DocumentInfo         `json:"info,omitempty"`
	Report   *models.ReconciliationReport `json:"report,omitempty"`
	Err      error                        `json:"-"`
	Error    string                       `json:"error,omitempty"`
	Duration time.Duration                `json:"duration"`
}

// Failed reports whether the document could not be processed
func (r DocumentResult) Failed() bool {
	return r.Err != nil
}

// BatchSummary aggregates the results of a batch
type BatchSummary struct {
	Documents        int           `json:"documents"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Coverages        int           `json:"coverages"`
	MatchedTargets   int           `json:"matched_targets"`
	UnmatchedTargets int           `json:"unmatched_targets"`
	UnmatchedRaw     int           `json:"unmatched_raw"`
	Duration         time.Duration `json:"duration"`
}

// BatchResult holds per-document results in request order
type BatchResult struct {
	Documents   []DocumentResult `json:"documents"`
	Summary     BatchSummary     `json:"summary"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// Errors returns the document failures as an error summary, or nil
func (b *BatchResult) Errors() *errors.ErrorSummary {
	var errs []*errors.ReconcilerError
	for _, d := range b.Documents {
		if d.Err == nil {
			continue
		}
		errs = append(errs, errors.WrapIfNeeded(d.Err, errors.CategoryDocument, errors.CodeExtractionFailed, d.Name))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.NewErrorSummary(errs)
}

// ProgressCallback is called after each document finishes. Calls are
// serialised but arrive in completion order.
type ProgressCallback func(done, total int, result DocumentResult)

// ProcessBatch extracts every document and reconciles it against the
// request's targets. Documents are processed in parallel up to
// MaxConcurrentDocuments. A failing document is recorded on its result and
// never stops the others; cancelling ctx marks the documents not yet started
// as failed.
func (s *Service) ProcessBatch(ctx context.Context, request *BatchRequest, progress ProgressCallback) (*BatchResult, error) {
	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "batch_request", nil, fmt.Errorf("request is nil"))
	}
	if err := request.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidData, "batch_request", len(request.Documents), err)
	}

	start := time.Now()
	total := len(request.Documents)
	results := make([]DocumentResult, total)

	var tracker *logger.ProgressTracker
	if s.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "process_documents",
			Total:     int64(total),
			Logger:    s.logger,
		})
	}

	finished := make(chan DocumentResult)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		done := 0
		for r := range finished {
			done++
			if tracker != nil {
				tracker.Done(r.Failed())
			}
			if progress != nil {
				progress(done, total, r)
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrentDocuments)
	for i, input := range request.Documents {
		i, input := i, input
		g.Go(func() error {
			r := s.processDocument(ctx, i, input, request.Targets, request.Threshold)
			results[i] = r
			finished <- r
			return nil
		})
	}
	_ = g.Wait()
	close(finished)
	<-reported

	if tracker != nil {
		tracker.Complete()
	}

	batch := &BatchResult{
		Documents:   results,
		ProcessedAt: start,
	}
	batch.Summary = summarize(results, time.Since(start))

	s.logger.WithFields(logger.Fields{
		"documents": batch.Summary.Documents,
		"failed":    batch.Summary.Failed,
		"duration":  batch.Summary.Duration.String(),
	}).Info("Batch processed")

	return batch, nil
}

func (s *Service) processDocument(ctx context.Context, index int, input DocumentInput, targets []models.TargetLabel, threshold float64) DocumentResult {
	start := time.Now()
	result := DocumentResult{Index: index, Name: input.DisplayName()}
	log := s.logger.WithField("document", result.Name)

	fail := func(err error) DocumentResult {
		result.Err = err
		result.Error = err.Error()
		result.Duration = time.Since(start)
		log.WithError(err).Warn("Document failed")
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(errors.DocumentError(errors.CodeExtractionFailed, result.Name, err))
	}

	var (
		info *models.DocumentInfo
		err  error
	)
	if input.Data != nil {
		var r io.ReadSeeker = bytes.NewReader(input.Data)
		info, err = s.ExtractReader(ctx, result.Name, r)
	} else {
		info, err = s.ExtractFile(ctx, input.Path)
	}
	if err != nil {
		return fail(err)
	}
	if input.Name != "" {
		info.Name = input.Name
	}

	result.Info = info
	if targets != nil {
		result.Report = s.Reconcile(info.Coverages, targets, threshold)
	}
	result.Duration = time.Since(start)
	return result
}

func summarize(results []DocumentResult, elapsed time.Duration) BatchSummary {
	s := BatchSummary{Documents: len(results), Duration: elapsed}
	for _, r := range results {
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Coverages += len(r.Info.Coverages)
		if r.Report != nil {
			rs := r.Report.Summary()
			s.MatchedTargets += rs.MatchedTargets
			s.UnmatchedTargets += rs.UnmatchedTargets
			s.UnmatchedRaw += rs.UnmatchedRaw
		}
	}
	return s
}
