// Package extractor turns an opened policy document into coverage line items.
//
// Every issuer lays out its coverage pages differently, so extraction is a
// chain of strategies chosen by issuer. A stage that finds nothing hands over
// to the next one; a stage that fails stops the chain. Enrichers then patch
// the surviving items with values printed elsewhere in the document.
//
// Strategy families:
//   - table-driven: TableStrategy with a TableProfile (generic and Samsung Life)
//   - numbered-line: KBLineStrategy, SamsungLifeLineStrategy
//   - block-accumulator: MiraeBlockStrategy
//   - section readers: MiraeBenefitStrategy
//
// Example usage:
//
//	ext := extractor.New(logger.GetGlobalLogger())
//	info, err := ext.ExtractDocument(doc)
//	for _, item := range info.Coverages {
//		fmt.Println(item.Name, item.Amount)
//	}
package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/parsers"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

// Status is the kind of result a strategy produced
type Status int

const (
	StatusEmpty Status = iota
	StatusSuccess
	StatusFailure
)

// String returns a human-readable status
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "empty"
	}
}

// Outcome is the result of running one strategy
type Outcome struct {
	Status Status
	Items  []models.RawCoverageItem
	Err    error
}

// Found wraps extracted items. No items means an empty outcome.
func Found(items []models.RawCoverageItem) Outcome {
	items = dedupe(items)
	if len(items) == 0 {
		return Outcome{Status: StatusEmpty}
	}
	return Outcome{Status: StatusSuccess, Items: items}
}

// Failed reports that a strategy could not run at all
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailure, Err: err}
}

// Strategy extracts coverage items from a document
type Strategy interface {
	Name() string
	Extract(doc *document.Document) Outcome
}

// Enricher post-processes the deduplicated items of a chain. It must not
// modify the slice it is given.
type Enricher interface {
	Name() string
	Enrich(doc *document.Document, items []models.RawCoverageItem) []models.RawCoverageItem
}

// Attempt records one stage of a chain run
type Attempt struct {
	Strategy string `json:"strategy"`
	Status   Status `json:"status"`
	Items    int    `json:"items"`
}

// ChainResult is what a chain run produced
type ChainResult struct {
	Items    []models.RawCoverageItem
	Strategy string
	Attempts []Attempt
}

// Chain is an ordered list of strategies tried until one finds items
type Chain struct {
	Stages    []Strategy
	Enrichers []Enricher
}

// Run tries each stage once, in order. Empty outcomes move on to the next
// stage; a failure stops the chain and is returned.
func (c Chain) Run(doc *document.Document) (*ChainResult, error) {
	result := &ChainResult{}

	for _, stage := range c.Stages {
		outcome := runStage(stage, doc)
		result.Attempts = append(result.Attempts, Attempt{
			Strategy: stage.Name(),
			Status:   outcome.Status,
			Items:    len(outcome.Items),
		})

		if outcome.Status == StatusFailure {
			return result, errors.DocumentError(errors.CodeExtractionFailed, doc.Name, outcome.Err).
				WithContext("strategy", stage.Name())
		}
		if outcome.Status == StatusSuccess {
			result.Items = outcome.Items
			result.Strategy = stage.Name()
			break
		}
	}

	for _, e := range c.Enrichers {
		result.Items = e.Enrich(doc, result.Items)
	}

	return result, nil
}

func runStage(stage Strategy, doc *document.Document) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(fmt.Errorf("strategy %s panicked: %v", stage.Name(), r))
		}
	}()
	return stage.Extract(doc)
}

// ChainFor returns the extraction chain for an issuer
func ChainFor(issuer models.Issuer) Chain {
	generic := NewTableStrategy(GenericTableProfile())

	switch issuer {
	case models.IssuerSamsungLife:
		return Chain{Stages: []Strategy{
			NewSamsungLifeLineStrategy(),
			NewTableStrategy(SamsungLifeTableProfile()),
			generic,
		}}
	case models.IssuerKB:
		return Chain{
			Stages:    []Strategy{NewKBLineStrategy(), generic},
			Enrichers: []Enricher{NewGrade14Enricher()},
		}
	case models.IssuerMirae:
		return Chain{
			Stages:    []Strategy{NewMiraeBlockStrategy(), NewMiraeBenefitStrategy(), generic},
			Enrichers: []Enricher{NewMainContractEnricher()},
		}
	default:
		return Chain{Stages: []Strategy{generic}}
	}
}

// Extractor runs issuer detection, product and premium lookup, and the
// coverage chain for a document.
type Extractor struct {
	logger   logger.Logger
	chainFor func(models.Issuer) Chain
}

// New creates an extractor using the built-in chains
func New(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Extractor{
		logger:   log.WithComponent("extractor"),
		chainFor: ChainFor,
	}
}

// ExtractDocument extracts issuer, product name, premium and coverages.
// Only a failing strategy produces an error; a document without recognisable
// coverages yields an empty list.
func (e *Extractor) ExtractDocument(doc *document.Document) (*models.DocumentInfo, error) {
	if doc == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "document", nil, fmt.Errorf("document is nil"))
	}

	log := e.logger.WithField("document", doc.Name)

	issuer, _ := parsers.DetectIssuer(doc.JoinedText(0, parsers.IssuerPages))
	product, ok := parsers.DetectProductName(doc.Texts(0, parsers.ProductPages))
	if !ok {
		product = models.UnknownProductName
	}

	info := &models.DocumentInfo{
		Name:        doc.Name,
		Issuer:      issuer,
		IssuerName:  issuer.DisplayName(),
		ProductName: product,
		PageCount:   doc.PageCount(),
	}
	if premium, ok := parsers.ExtractPremium(doc.Texts(0, parsers.PremiumPages)); ok {
		info.Premium = &premium
	}

	result, err := e.chainFor(issuer).Run(doc)
	if err != nil {
		log.WithError(err).Warn("Coverage extraction failed")
		return nil, err
	}

	for _, a := range result.Attempts {
		log.WithFields(logger.Fields{
			"strategy": a.Strategy,
			"status":   a.Status.String(),
			"items":    a.Items,
		}).Debug("Extraction stage finished")
	}

	info.Strategy = result.Strategy
	info.Coverages = result.Items
	if info.Coverages == nil {
		info.Coverages = []models.RawCoverageItem{}
	}

	log.WithFields(logger.Fields{
		"issuer":    issuer.String(),
		"strategy":  result.Strategy,
		"coverages": len(info.Coverages),
	}).Info("Document extracted")

	return info, nil
}

func dedupe(items []models.RawCoverageItem) []models.RawCoverageItem {
	seen := make(map[string]bool, len(items))
	out := make([]models.RawCoverageItem, 0, len(items))
	for _, it := range items {
		if seen[it.Name] {
			continue
		}
		seen[it.Name] = true
		out = append(out, it)
	}
	return out
}

// collector accumulates items, dropping repeats of a name as it goes
type collector struct {
	items []models.RawCoverageItem
	seen  map[string]bool
}

func newCollector() *collector {
	return &collector{seen: make(map[string]bool)}
}

func (c *collector) add(name string, amount int64, page int) {
	if name == "" || amount <= 0 || c.seen[name] {
		return
	}
	c.seen[name] = true
	c.items = append(c.items, models.RawCoverageItem{Name: name, Amount: amount, Page: page})
}

func (c *collector) has(name string) bool {
	return c.seen[name]
}

// pageLine is a trimmed line of text with the page it came from
type pageLine struct {
	text string
	page int
}

func linesOf(pages []document.Page) []pageLine {
	var out []pageLine
	for _, p := range pages {
		for _, l := range p.Lines() {
			out = append(out, pageLine{text: strings.TrimSpace(l), page: p.Number})
		}
	}
	return out
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func removeSpaces(s string) string {
	return whitespaceRe.ReplaceAllString(s, "")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func equalsAny(s string, values []string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}
