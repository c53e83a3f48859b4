package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/internal/template"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultThreshold = 75.0
	defaultFilename  = "보장분석표_매칭결과.xlsx"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleParsePDF(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}

	header, err := singleFile(r.MultipartForm, "pdf_file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := readUpload(header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.service.ExtractBytes(r.Context(), header.Filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, parseResponse{
		Success:       true,
		Filename:      header.Filename,
		InsurerCode:   info.Issuer.String(),
		InsurerName:   info.IssuerName,
		ProductName:   info.ProductName,
		Premium:       info.Premium,
		PageCount:     info.PageCount,
		Coverages:     coverageEntries(info.Coverages),
		CoverageCount: len(info.Coverages),
	})
}

func (s *Server) handleMatchWithSummary(w http.ResponseWriter, r *http.Request) {
	run, err := s.runMatch(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer run.workbook.Close()

	resp := matchSummaryResponse{
		Success:      true,
		RunID:        run.runID,
		CustomerName: run.customer,
		Structure:    newStructure(run.detected),
		TotalPDFs:    len(run.batch.Documents),
		Summary:      run.batch.Summary,
		Results:      make([]documentSummary, 0, len(run.batch.Documents)),
	}
	for _, d := range run.batch.Documents {
		resp.Results = append(resp.Results, newDocumentSummary(d, s.template.AmountColumn(d.Index)))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	run, err := s.runMatch(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer run.workbook.Close()

	for _, d := range run.batch.Documents {
		if d.Failed() {
			continue
		}
		column := s.template.AmountColumn(d.Index)
		if err := run.workbook.WriteDocumentInfo(d.Info, run.layout, column); err != nil {
			s.writeError(w, r, err)
			return
		}
		if _, err := run.workbook.WriteReport(d.Report, column); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if _, err := run.workbook.WriteTo(&buf); err != nil {
		s.writeError(w, r, errors.ReconciliationError(errors.CodeWriteFailed, "render_workbook", err))
		return
	}

	filename := defaultFilename
	if run.customer != "" {
		filename = run.customer + "_보장분석표.xlsx"
	}

	h := w.Header()
	h.Set("Content-Type", xlsxContentType)
	h.Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+requestIDHeader)
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	if run.batch.Summary.Failed > 0 {
		h.Set("X-Failed-Documents", strconv.Itoa(run.batch.Summary.Failed))
	}
	if run.runID != "" {
		h.Set("X-Run-ID", run.runID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.WithError(err).Warn("Failed to write workbook response")
	}
}

// matchRun is the shared part of both match endpoints: the uploaded
// workbook, its layout and the batch result for the uploaded documents.
type matchRun struct {
	workbook *template.Workbook
	detected template.Layout
	layout   template.Layout
	batch    *reconciler.BatchResult
	customer string
	runID    string
}

func (s *Server) runMatch(w http.ResponseWriter, r *http.Request) (*matchRun, error) {
	if err := s.parseForm(w, r); err != nil {
		return nil, err
	}
	form := r.MultipartForm

	threshold, err := parseThreshold(form)
	if err != nil {
		return nil, err
	}

	pdfs := append(form.File["pdf_files"], form.File["pdf_files[]"]...)
	if len(pdfs) == 0 {
		return nil, errors.RequestError(errors.CodeBadRequest, "pdf_files", nil)
	}
	if len(pdfs) > s.config.MaxDocuments {
		return nil, errors.RequestError(errors.CodeBadRequest, "pdf_files", nil).
			WithContext("max_documents", s.config.MaxDocuments).
			WithContext("received", len(pdfs))
	}

	excel, err := singleFile(form, "excel_file")
	if err != nil {
		return nil, err
	}
	workbook, err := s.openWorkbook(excel, formValue(form, "sheet_name"))
	if err != nil {
		return nil, err
	}

	run := &matchRun{workbook: workbook, customer: formValue(form, "customer_name")}
	if err := s.prepareRun(r, run, pdfs, threshold); err != nil {
		workbook.Close()
		return nil, err
	}
	return run, nil
}

func (s *Server) prepareRun(r *http.Request, run *matchRun, pdfs []*multipart.FileHeader, threshold float64) error {
	detected, err := run.workbook.FindLayout()
	if err != nil {
		return err
	}
	run.detected = detected
	run.layout = detected.WithFallback(s.template.Fallback)

	targets, err := run.workbook.TargetLabels(run.layout.StartRow)
	if err != nil {
		return err
	}

	docs := make([]reconciler.DocumentInput, 0, len(pdfs))
	for _, fh := range pdfs {
		data, err := readUpload(fh)
		if err != nil {
			return err
		}
		docs = append(docs, reconciler.DocumentInput{Name: fh.Filename, Data: data})
	}

	run.batch, err = s.service.ProcessBatch(r.Context(), &reconciler.BatchRequest{
		Documents: docs,
		Targets:   targets,
		Threshold: threshold,
	}, nil)
	if err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"request_id": RequestIDFrom(r.Context()),
		"documents":  run.batch.Summary.Documents,
		"failed":     run.batch.Summary.Failed,
		"targets":    len(targets),
		"matched":    run.batch.Summary.MatchedTargets,
	}).Info("Match request processed")

	if s.archive != nil {
		record := archive.NewRun("http", run.customer, run.batch)
		record.Template = run.workbook.Name()
		id, err := s.archive.Record(r.Context(), record)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to archive run")
		} else {
			run.runID = id
		}
	}
	return nil
}

func (s *Server) openWorkbook(fh *multipart.FileHeader, sheet string) (*template.Workbook, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.RequestError(errors.CodeBadRequest, "excel_file", err)
	}
	defer f.Close()

	cfg := *s.template
	if sheet != "" {
		cfg.SheetName = sheet
	}
	return template.OpenReader(f, fh.Filename, &cfg)
}

// parseForm reads the multipart body within the configured size limit
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes())
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return errors.RequestError(errors.CodeUploadTooLarge, "body", err).
				WithContext("limit_bytes", s.config.MaxUploadBytes())
		}
		return errors.RequestError(errors.CodeBadRequest, "body", err)
	}
	return nil
}

func singleFile(form *multipart.Form, field string) (*multipart.FileHeader, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, errors.RequestError(errors.CodeBadRequest, field, nil)
	}
	return files[0], nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.RequestError(errors.CodeBadRequest, fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.RequestError(errors.CodeBadRequest, fh.Filename, err)
	}
	return data, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func parseThreshold(form *multipart.Form) (float64, error) {
	raw := formValue(form, "threshold")
	if raw == "" {
		return defaultThreshold, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return 0, errors.RequestError(errors.CodeBadRequest, "threshold", err).
			WithContext("value", raw)
	}
	return v, nil
}

// Responses

type coverageEntry struct {
	Name         string `json:"name"`
	Amount       int64  `json:"amount"`
	AmountManwon int64  `json:"amount_manwon"`
}

type parseResponse struct {
	Success       bool            `json:"success"`
	Filename      string          `json:"filename"`
	InsurerCode   string          `json:"insurer_code"`
	InsurerName   string          `json:"insurer_name"`
	ProductName   string          `json:"product_name"`
	Premium       *int64          `json:"premium"`
	PageCount     int             `json:"page_count"`
	Coverages     []coverageEntry `json:"coverages"`
	CoverageCount int             `json:"coverage_count"`
}

type structure struct {
	InsurerRow *int `json:"insurer_row"`
	ProductRow *int `json:"product_row"`
	PremiumRow *int `json:"premium_row"`
	ReserveRow *int `json:"reserve_row"`
	StartRow   *int `json:"start_row"`
}

type matchedEntry struct {
	ExcelRow     int     `json:"excel_row"`
	ExcelLabel   string  `json:"excel_label"`
	PDFLabel     string  `json:"pdf_label"`
	Amount       int64   `json:"amount"`
	AmountManwon int64   `json:"amount_manwon"`
	Similarity   float64 `json:"similarity"`
}

type unmatchedLabel struct {
	Row   int    `json:"row"`
	Label string `json:"label"`
}

type documentSummary struct {
	PDFName      string `json:"pdf_name"`
	PDFIndex     int    `json:"pdf_index"`
	ColumnLetter string `json:"column_letter"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`

	InsurerCode string `json:"insurer_code"`
	InsurerName string `json:"insurer_name"`
	ProductName string `json:"product_name"`
	Premium     *int64 `json:"premium"`

	PDFCoverageCount int             `json:"pdf_coverage_count"`
	PDFCoverages     []coverageEntry `json:"pdf_coverages"`

	MatchedCount        int              `json:"matched_count"`
	UnmatchedExcelCount int              `json:"unmatched_excel_count"`
	UnmatchedPDFCount   int              `json:"unmatched_pdf_count"`
	Matched             []matchedEntry   `json:"matched"`
	UnmatchedExcel      []unmatchedLabel `json:"unmatched_excel"`
	UnmatchedPDF        []coverageEntry  `json:"unmatched_pdf"`
}

type matchSummaryResponse struct {
	Success      bool                    `json:"success"`
	RunID        string                  `json:"run_id,omitempty"`
	CustomerName string                  `json:"customer_name"`
	Structure    structure               `json:"structure"`
	TotalPDFs    int                     `json:"total_pdfs"`
	Summary      reconciler.BatchSummary `json:"summary"`
	Results      []documentSummary       `json:"results"`
}

type errorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func rowOrNil(row int) *int {
	if row <= 0 {
		return nil
	}
	return &row
}

func newStructure(l template.Layout) structure {
	return structure{
		InsurerRow: rowOrNil(l.InsurerRow),
		ProductRow: rowOrNil(l.ProductRow),
		PremiumRow: rowOrNil(l.PremiumRow),
		ReserveRow: rowOrNil(l.ReserveRow),
		StartRow:   rowOrNil(l.StartRow),
	}
}

func coverageEntries(items []models.RawCoverageItem) []coverageEntry {
	entries := make([]coverageEntry, 0, len(items))
	for _, c := range items {
		entries = append(entries, coverageEntry{Name: c.Name, Amount: c.Amount, AmountManwon: models.Manwon(c.Amount)})
	}
	return entries
}

func newDocumentSummary(d reconciler.DocumentResult, column int) documentSummary {
	sum := documentSummary{
		PDFName:        d.Name,
		PDFIndex:       d.Index,
		ColumnLetter:   template.ColumnLetter(column),
		Success:        !d.Failed(),
		Error:          d.Error,
		PDFCoverages:   []coverageEntry{},
		Matched:        []matchedEntry{},
		UnmatchedExcel: []unmatchedLabel{},
		UnmatchedPDF:   []coverageEntry{},
	}

	if d.Info != nil {
		sum.InsurerCode = d.Info.Issuer.String()
		sum.InsurerName = d.Info.IssuerName
		sum.ProductName = d.Info.ProductName
		sum.Premium = d.Info.Premium
		sum.PDFCoverages = coverageEntries(d.Info.Coverages)
		sum.PDFCoverageCount = len(d.Info.Coverages)
	}

	if d.Report != nil {
		for _, m := range d.Report.Matched {
			sum.Matched = append(sum.Matched, matchedEntry{
				ExcelRow:     m.Target.Row,
				ExcelLabel:   m.Target.Text,
				PDFLabel:     m.Provenance,
				Amount:       m.Amount,
				AmountManwon: models.Manwon(m.Amount),
				Similarity:   m.Confidence,
			})
		}
		for _, t := range d.Report.UnmatchedTargets {
			sum.UnmatchedExcel = append(sum.UnmatchedExcel, unmatchedLabel{Row: t.Row, Label: t.Text})
		}
		sum.UnmatchedPDF = coverageEntries(d.Report.UnmatchedRaw)
	}

	sum.MatchedCount = len(sum.Matched)
	sum.UnmatchedExcelCount = len(sum.UnmatchedExcel)
	sum.UnmatchedPDFCount = len(sum.UnmatchedPDF)
	return sum
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rerr := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "request failed")
	status := rerr.HTTPStatus()

	entry := s.logger.WithFields(logger.Fields{
		"request_id": RequestIDFrom(r.Context()),
		"path":       r.URL.Path,
		"status":     status,
		"code":       rerr.Code,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	writeJSON(w, status, errorResponse{
		Success:    false,
		Error:      rerr.Message,
		Code:       string(rerr.Code),
		Suggestion: rerr.Suggestion,
		RequestID:  RequestIDFrom(r.Context()),
	})
}
