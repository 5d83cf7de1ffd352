//go:build property
// +build property

// Package scoring_test contains property-based tests for confidence scoring.
package scoring_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/scoring"
)

func propScorer(t *testing.T) *scoring.Scorer {
	s, err := scoring.NewScorer(scoring.Config{
		EvidenceWeight:        0.5,
		ReputationWeight:      0.3,
		ConsistencyWeight:     0.2,
		InconsistencyStep:     0.25,
		FlagPenalty:           0.2,
		DuplicatePenalty:      0.5,
		VerificationThreshold: 0.7,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func propFlags(inconsistencies, other int) []fraud.Flag {
	var flags []fraud.Flag
	for i := 0; i < inconsistencies; i++ {
		flags = append(flags, fraud.Flag{Kind: fraud.KindEvidenceInconsistency})
	}
	for i := 0; i < other; i++ {
		flags = append(flags, fraud.Flag{Kind: fraud.KindRapidSubmission})
	}
	return flags
}

// TestConfidenceBounds verifies confidence never leaves [0,1].
// Property: 0 <= Score(in).Confidence <= 1 for any input
func TestConfidenceBounds(t *testing.T) {
	scorer := propScorer(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Confidence stays in [0,1]", prop.ForAll(
		func(ev, rep float64, inconsistencies, other int) bool {
			res := scorer.Score(scoring.Input{
				EvidenceScore:   ev,
				ReputationScore: rep,
				Flags:           propFlags(inconsistencies%5, other%5),
			})
			return res.Confidence >= 0 && res.Confidence <= 1
		},
		gen.Float64Range(-2, 2),
		gen.Float64Range(-2, 2),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestDuplicateNeverVerifies verifies a duplicate flag always blocks the
// verified verdict, whatever the sub-scores are.
func TestDuplicateNeverVerifies(t *testing.T) {
	scorer := propScorer(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Duplicate flag blocks verification", prop.ForAll(
		func(ev, rep float64) bool {
			res := scorer.Score(scoring.Input{
				EvidenceScore:   ev,
				ReputationScore: rep,
				Flags:           []fraud.Flag{{Kind: fraud.KindDuplicateEvidence}},
			})
			return !res.Verified
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// TestScoringDeterminism verifies Score(in) == Score(in).
func TestScoringDeterminism(t *testing.T) {
	scorer := propScorer(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Scoring is deterministic", prop.ForAll(
		func(ev, rep float64, inconsistencies int) bool {
			in := scoring.Input{
				EvidenceScore:   ev,
				ReputationScore: rep,
				Flags:           propFlags(inconsistencies%5, 0),
			}
			return scorer.Score(in) == scorer.Score(in)
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
