// Package fraud runs independent pattern checks over a contribution and
// emits structured fraud flags. Flags are signals, not verdicts: they never
// short-circuit evaluation, they feed the confidence scorer as penalties and
// are reported verbatim for human review.
package fraud

import "fmt"

// FlagKind discriminates the flag variants.
type FlagKind string

const (
	KindDuplicateEvidence     FlagKind = "duplicate_evidence"
	KindRapidSubmission       FlagKind = "rapid_submission"
	KindEvidenceInconsistency FlagKind = "evidence_inconsistency"
	KindCustomRule            FlagKind = "custom_rule"
)

// Flag is a tagged fraud signal. Only the fields belonging to the variant
// named by Kind are populated.
type Flag struct {
	Kind FlagKind `json:"kind"`

	// duplicate_evidence
	OtherContributionID string `json:"other_contribution_id,omitempty"`

	// rapid_submission
	WindowSeconds int `json:"window_seconds,omitempty"`
	Count         int `json:"count,omitempty"`

	// evidence_inconsistency
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`

	// custom_rule
	Rule string `json:"rule,omitempty"`
}

// String renders the flag for reasoning traces.
func (f Flag) String() string {
	switch f.Kind {
	case KindDuplicateEvidence:
		return fmt.Sprintf("duplicate evidence: already used by contribution %s", f.OtherContributionID)
	case KindRapidSubmission:
		return fmt.Sprintf("rapid submission: %d submissions within %ds window", f.Count, f.WindowSeconds)
	case KindEvidenceInconsistency:
		return fmt.Sprintf("evidence inconsistency: %s expected %q, got %q", f.Field, f.Expected, f.Actual)
	case KindCustomRule:
		return fmt.Sprintf("custom rule fired: %s", f.Rule)
	}
	return string(f.Kind)
}

// HasDuplicate reports whether any flag in flags is a duplicate-evidence
// flag. A contribution with an active duplicate flag can never be verified.
func HasDuplicate(flags []Flag) bool {
	for _, f := range flags {
		if f.Kind == KindDuplicateEvidence {
			return true
		}
	}
	return false
}

// CountKind returns how many flags of the given kind are present.
func CountKind(flags []Flag, kind FlagKind) int {
	n := 0
	for _, f := range flags {
		if f.Kind == kind {
			n++
		}
	}
	return n
}
