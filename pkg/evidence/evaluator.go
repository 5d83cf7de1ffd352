// Package evidence derives per-item and aggregate quality scores for the
// evidence attached to a contribution. Scoring is a pure function of the
// input items and the configured source-kind weight table; reachability is
// delegated to an external collaborator behind the Fetcher interface.
package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/provara/engine/pkg/contribution"
)

// Weights maps an evidence source kind to its base quality weight in [0,1].
// Code repositories carry the most weight, unverifiable signatures the least.
type Weights map[contribution.SourceKind]float64

// DefaultWeights is the standard base-quality table.
func DefaultWeights() Weights {
	return Weights{
		contribution.SourceCodeRepo:  1.0,
		contribution.SourceDocument:  0.8,
		contribution.SourceWebsite:   0.5,
		contribution.SourceSignature: 0.3,
	}
}

// ItemScore is the scored outcome for one evidence item.
type ItemScore struct {
	Item      contribution.EvidenceItem `json:"item"`
	Quality   float64                   `json:"quality"`
	Reachable bool                      `json:"reachable"`
}

// Report aggregates the per-item scores for one contribution.
type Report struct {
	Items     []ItemScore `json:"items"`
	Aggregate float64     `json:"aggregate"`
}

// Evaluator scores evidence lists. Safe for concurrent use.
type Evaluator struct {
	weights Weights
	fetcher Fetcher
	logger  *slog.Logger
}

// NewEvaluator builds an evaluator over the given weight table. A nil fetcher
// treats every item as reachable; a nil logger falls back to slog.Default.
func NewEvaluator(weights Weights, fetcher Fetcher, logger *slog.Logger) *Evaluator {
	if fetcher == nil {
		fetcher = NopFetcher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{weights: weights, fetcher: fetcher, logger: logger.With("component", "evidence")}
}

// Evaluate scores every item and returns the aggregate. An empty list yields
// aggregate 0.0; it is not an error, confidence will simply be low. An
// unreachable item scores 0 for that item, also not an error.
func (e *Evaluator) Evaluate(ctx context.Context, items []contribution.EvidenceItem) Report {
	report := Report{Items: make([]ItemScore, 0, len(items))}
	if len(items) == 0 {
		return report
	}

	var sum float64
	for _, item := range items {
		score := ItemScore{Item: item}
		if err := e.fetcher.Check(ctx, item.URLOrHash); err != nil {
			// Fetch timeouts and failures degrade to a zero score.
			e.logger.WarnContext(ctx, "evidence unreachable",
				"url", item.URLOrHash, "error", err)
		} else {
			score.Reachable = true
			score.Quality = e.weights[item.SourceKind]
		}
		sum += score.Quality
		report.Items = append(report.Items, score)
	}

	report.Aggregate = sum / float64(len(items))
	if report.Aggregate > 1.0 {
		report.Aggregate = 1.0
	}
	return report
}

// EvidenceUnreachableError marks a collaborator fetch failure. It is logged
// and scored as zero, never propagated out of the evaluator.
type EvidenceUnreachableError struct {
	URL   string
	Cause error
}

func (e *EvidenceUnreachableError) Error() string {
	return fmt.Sprintf("evidence unreachable: %s: %v", e.URL, e.Cause)
}

func (e *EvidenceUnreachableError) Unwrap() error { return e.Cause }
