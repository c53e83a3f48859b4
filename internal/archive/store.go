// Package archive keeps a history of reconcile runs in SQLite.
//
// Every run gets a UUID. The run row carries the batch totals; each document
// row carries the extracted header fields and the JSON match report, so a
// past run can be inspected without the original files.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// fixed width so that created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Config controls the run archive
type Config struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// DefaultConfig returns the default archive configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Path:    "coverage-runs.db",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("archive path is required when the archive is enabled")
	}
	return nil
}

// Run is one archived reconcile run
type Run struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Source    string                  `json:"source"`
	Customer  string                  `json:"customer,omitempty"`
	Template  string                  `json:"template,omitempty"`
	Output    string                  `json:"output,omitempty"`
	Summary   reconciler.BatchSummary `json:"summary"`
	Documents []RunDocument           `json:"documents,omitempty"`
}

// RunDocument is the archived outcome for one document of a run
type RunDocument struct {
	Name        string                       `json:"name"`
	Issuer      models.Issuer                `json:"issuer"`
	ProductName string                       `json:"product_name,omitempty"`
	Premium     *int64                       `json:"premium,omitempty"`
	Strategy    string                       `json:"strategy,omitempty"`
	Coverages   int                          `json:"coverages"`
	Matched     int                          `json:"matched"`
	Error       string                       `json:"error,omitempty"`
	Report      *models.ReconciliationReport `json:"report,omitempty"`
}

// NewRun builds a run record from a batch result
func NewRun(source, customer string, batch *reconciler.BatchResult) *Run {
	run := &Run{
		CreatedAt: batch.ProcessedAt,
		Source:    source,
		Customer:  customer,
		Summary:   batch.Summary,
	}
	for _, d := range batch.Documents {
		doc := RunDocument{Name: d.Name, Error: d.Error, Report: d.Report}
		if d.Info != nil {
			doc.Issuer = d.Info.Issuer
			doc.ProductName = d.Info.ProductName
			doc.Premium = d.Info.Premium
			doc.Strategy = d.Info.Strategy
			doc.Coverages = len(d.Info.Coverages)
		}
		if d.Report != nil {
			doc.Matched = len(d.Report.Matched)
		}
		run.Documents = append(run.Documents, doc)
	}
	return run
}

// Store is a SQLite-backed run archive
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path. Use ":memory:" for a
// throwaway archive.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_open", err).
			WithContext("path", path)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_migrate", err).
			WithContext("path", path)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run and its documents in one transaction. A missing ID is
// generated; the ID is returned.
func (s *Store) Record(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.InternalError(errors.CodeProcessingError, "archive_record", err)
	}
	defer tx.Rollback()

	sum := run.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, customer, template, output,
			documents, failed, coverages, matched_targets, unmatched_targets, unmatched_raw, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Source, run.Customer, run.Template, run.Output,
		sum.Documents, sum.Failed, sum.Coverages, sum.MatchedTargets, sum.UnmatchedTargets, sum.UnmatchedRaw,
		sum.Duration.Milliseconds(),
	)
	if err != nil {
		return "", errors.InternalError(errors.CodeProcessingError, "archive_record", err).
			WithContext("run_id", run.ID)
	}

	for i, d := range run.Documents {
		var report sql.NullString
		if d.Report != nil {
			data, err := json.Marshal(d.Report)
			if err != nil {
				return "", errors.InternalError(errors.CodeUnexpectedError, "archive_encode_report", err)
			}
			report = sql.NullString{String: string(data), Valid: true}
		}
		var premium sql.NullInt64
		if d.Premium != nil {
			premium = sql.NullInt64{Int64: *d.Premium, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_documents (run_id, position, name, issuer, product_name, premium, strategy,
				coverages, matched, error, report)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, d.Name, string(d.Issuer), d.ProductName, premium, d.Strategy,
			d.Coverages, d.Matched, d.Error, report,
		)
		if err != nil {
			return "", errors.InternalError(errors.CodeProcessingError, "archive_record", err).
				WithContext("run_id", run.ID).
				WithContext("document", d.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.InternalError(errors.CodeProcessingError, "archive_record", err)
	}
	return run.ID, nil
}

// List returns the most recent runs, newest first, without their documents.
// limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, created_at, source, customer, template, output,
		documents, failed, coverages, matched_targets, unmatched_targets, unmatched_raw, duration_ms
		FROM runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_list", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_list", err)
	}
	return runs, nil
}

// Get returns a run with its documents
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, source, customer, template, output,
		documents, failed, coverages, matched_targets, unmatched_targets, unmatched_raw, duration_ms
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Cause == sql.ErrNoRows {
			return nil, errors.ValidationError(errors.CodeInvalidData, "run_id", id, sql.ErrNoRows).
				WithSuggestion("list archived runs with the history command")
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, issuer, product_name, premium, strategy,
		coverages, matched, error, report
		FROM run_documents WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_get", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d                              RunDocument
			issuer, product, strategy, msg sql.NullString
			report                         sql.NullString
			premium                        sql.NullInt64
		)
		if err := rows.Scan(&d.Name, &issuer, &product, &premium, &strategy,
			&d.Coverages, &d.Matched, &msg, &report); err != nil {
			return nil, errors.InternalError(errors.CodeProcessingError, "archive_get", err)
		}
		d.Issuer = models.Issuer(issuer.String)
		d.ProductName = product.String
		d.Strategy = strategy.String
		d.Error = msg.String
		if premium.Valid {
			p := premium.Int64
			d.Premium = &p
		}
		if report.Valid {
			d.Report = &models.ReconciliationReport{}
			if err := json.Unmarshal([]byte(report.String), d.Report); err != nil {
				return nil, errors.InternalError(errors.CodeUnexpectedError, "archive_decode_report", err)
			}
		}
		run.Documents = append(run.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_get", err)
	}
	return run, nil
}

// Prune deletes runs created before cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, errors.InternalError(errors.CodeProcessingError, "archive_prune", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                        Run
		created                    string
		customer, template, output sql.NullString
		durationMS                 int64
	)
	err := row.Scan(&run.ID, &created, &run.Source, &customer, &template, &output,
		&run.Summary.Documents, &run.Summary.Failed, &run.Summary.Coverages,
		&run.Summary.MatchedTargets, &run.Summary.UnmatchedTargets, &run.Summary.UnmatchedRaw, &durationMS)
	if err != nil {
		return nil, errors.InternalError(errors.CodeProcessingError, "archive_scan", err)
	}

	run.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "archive_scan", err).
			WithContext("created_at", created)
	}
	run.Customer = customer.String
	run.Template = template.String
	run.Output = output.String
	run.Summary.Succeeded = run.Summary.Documents - run.Summary.Failed
	run.Summary.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
