// Package scoring combines the evidence, reputation, and consistency
// sub-scores into one aggregate confidence value and derives the
// verification verdict.
package scoring

import (
	"fmt"
	"math"

	"github.com/provara/engine/pkg/fraud"
)

// weightTolerance absorbs float formatting noise when checking that the
// three weights sum to 1.0.
const weightTolerance = 1e-9

// Config holds the fixed scorer configuration. Weights and penalties are
// named constants of the deployment so test vectors stay stable.
type Config struct {
	// Weights over the three sub-scores; must sum to 1.0.
	EvidenceWeight    float64 `json:"evidence_weight" yaml:"evidence_weight"`
	ReputationWeight  float64 `json:"reputation_weight" yaml:"reputation_weight"`
	ConsistencyWeight float64 `json:"consistency_weight" yaml:"consistency_weight"`

	// InconsistencyStep is the consistency deduction per
	// evidence-inconsistency flag; consistency = 1 - step*count, floored at 0.
	InconsistencyStep float64 `json:"inconsistency_step" yaml:"inconsistency_step"`

	// FlagPenalty is the confidence deduction per active non-duplicate flag.
	FlagPenalty float64 `json:"flag_penalty" yaml:"flag_penalty"`

	// DuplicatePenalty is the deduction for an active duplicate-evidence
	// flag. It must exceed 1 - VerificationThreshold so confidence can never
	// reach the passing threshold while a duplicate flag is active.
	DuplicatePenalty float64 `json:"duplicate_penalty" yaml:"duplicate_penalty"`

	// VerificationThreshold is the minimum confidence for a verified verdict.
	VerificationThreshold float64 `json:"verification_threshold" yaml:"verification_threshold"`
}

// Validate reports configuration errors. The engine refuses to start on any.
func (c Config) Validate() error {
	sum := c.EvidenceWeight + c.ReputationWeight + c.ConsistencyWeight
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("scorer weights must sum to 1.0, got %v", sum)
	}
	for name, w := range map[string]float64{
		"evidence_weight":    c.EvidenceWeight,
		"reputation_weight":  c.ReputationWeight,
		"consistency_weight": c.ConsistencyWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, w)
		}
	}
	if c.VerificationThreshold <= 0 || c.VerificationThreshold > 1 {
		return fmt.Errorf("verification_threshold must be in (0,1], got %v", c.VerificationThreshold)
	}
	if c.InconsistencyStep < 0 || c.InconsistencyStep > 1 {
		return fmt.Errorf("inconsistency_step must be in [0,1], got %v", c.InconsistencyStep)
	}
	if c.FlagPenalty < 0 {
		return fmt.Errorf("flag_penalty must be non-negative, got %v", c.FlagPenalty)
	}
	if c.DuplicatePenalty < 1-c.VerificationThreshold+weightTolerance {
		return fmt.Errorf("duplicate_penalty %v cannot guarantee an unverifiable duplicate: need > %v",
			c.DuplicatePenalty, 1-c.VerificationThreshold)
	}
	return nil
}

// Input carries the independent sub-scores and flags for one contribution.
type Input struct {
	EvidenceScore   float64
	ReputationScore float64
	Flags           []fraud.Flag
}

// Result is the scorer output.
type Result struct {
	Confidence       float64 `json:"confidence"`
	EvidenceScore    float64 `json:"evidence_score"`
	ReputationScore  float64 `json:"reputation_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	FraudPenalty     float64 `json:"fraud_penalty"`
	Verified         bool    `json:"verified"`
}

// Scorer computes confidence values under a validated Config.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Threshold returns the configured verification threshold.
func (s *Scorer) Threshold() float64 { return s.cfg.VerificationThreshold }

// Score computes
//
//	confidence = clamp01(wE*evidence + wR*reputation + wC*consistency - penalty)
//
// and the verdict. A contribution carrying any fraud flag is never
// auto-verified; a duplicate-evidence flag blocks verification outright in
// addition to its penalty.
func (s *Scorer) Score(in Input) Result {
	consistency := Clamp01(1.0 - s.cfg.InconsistencyStep*float64(fraud.CountKind(in.Flags, fraud.KindEvidenceInconsistency)))

	penalty := 0.0
	for _, f := range in.Flags {
		if f.Kind == fraud.KindDuplicateEvidence {
			penalty += s.cfg.DuplicatePenalty
		} else {
			penalty += s.cfg.FlagPenalty
		}
	}

	confidence := Clamp01(s.cfg.EvidenceWeight*in.EvidenceScore +
		s.cfg.ReputationWeight*in.ReputationScore +
		s.cfg.ConsistencyWeight*consistency -
		penalty)

	verified := confidence >= s.cfg.VerificationThreshold &&
		!fraud.HasDuplicate(in.Flags) &&
		len(in.Flags) == 0

	return Result{
		Confidence:       confidence,
		EvidenceScore:    in.EvidenceScore,
		ReputationScore:  in.ReputationScore,
		ConsistencyScore: consistency,
		FraudPenalty:     penalty,
		Verified:         verified,
	}
}

// Clamp01 restricts v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
