// Package proof serializes the engine's full reasoning trace and produces a
// stable content-addressed hash over it. The hash is the long-term audit
// identifier of "why this decision was made"; the trace text is for display
// only, never for programmatic re-parsing.
//
// Determinism: the hashed payload contains no wall-clock time and no
// randomness, so re-running an evaluation over an unchanged fact store
// reproduces the hash bit for bit.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/reward"
	"github.com/provara/engine/pkg/scoring"
)

// Trace is the ordered list of human-readable reasoning lines.
type Trace []string

// payload is the canonical form bound by the proof hash.
type payload struct {
	ContributionID string   `json:"contribution_id"`
	Trace          []string `json:"trace"`
}

// Builder assembles the trace in evaluation order.
type Builder struct {
	contributionID string
	lines          []string
}

// NewBuilder starts a trace for one contribution.
func NewBuilder(contributionID string) *Builder {
	return &Builder{contributionID: contributionID}
}

// Linef appends one formatted trace line.
func (b *Builder) Linef(format string, args ...any) *Builder {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
	return b
}

// EvidenceScore records the evidence sub-score. An empty evidence list is
// stated explicitly so auditors see why confidence is low.
func (b *Builder) EvidenceScore(score float64, itemCount int) *Builder {
	if itemCount == 0 {
		return b.Linef("evidence: no evidence provided, score 0.000")
	}
	return b.Linef("evidence: %d item(s), aggregate score %.3f", itemCount, score)
}

// ReputationScore records the reputation sub-score.
func (b *Builder) ReputationScore(score float64) *Builder {
	return b.Linef("reputation: score %.3f", score)
}

// ConsistencyScore records the consistency sub-score.
func (b *Builder) ConsistencyScore(score float64) *Builder {
	return b.Linef("consistency: score %.3f", score)
}

// FraudFlags records one line per flag, in detection order.
func (b *Builder) FraudFlags(flags []fraud.Flag) *Builder {
	for _, f := range flags {
		b.Linef("fraud: %s", f.String())
	}
	return b
}

// Confidence records the final aggregate confidence and verdict.
func (b *Builder) Confidence(r scoring.Result, threshold float64) *Builder {
	b.Linef("confidence: %.3f (threshold %.3f, fraud penalty %.3f)",
		r.Confidence, threshold, r.FraudPenalty)
	if r.Verified {
		return b.Linef("verdict: verified")
	}
	return b.Linef("verdict: not verified")
}

// Reward records the award breakdown.
func (b *Builder) Reward(br reward.Breakdown) *Builder {
	b.Linef("reward: %d tokens (base %d + bonus %d)", br.TokenAward, br.BaseTokens, br.BonusTokens)
	switch {
	case br.SecondaryGated:
		b.Linef("reward: secondary currency withheld, confidence below gate")
	case br.DustSuppressed:
		b.Linef("reward: secondary currency suppressed, amount under dust floor")
	case !br.SecondaryAward.IsZero():
		b.Linef("reward: secondary currency %s", br.SecondaryAward.String())
	}
	return b
}

// Override records that a manual human-review override was applied.
func (b *Builder) Override(status string) *Builder {
	return b.Linef("manual override applied: %s", status)
}

// Build returns the trace and its content-addressed hash. The payload is
// canonicalized per RFC 8785 before hashing so the hash is independent of
// map ordering and encoder quirks.
func (b *Builder) Build() (Trace, string, error) {
	lines := b.lines
	if lines == nil {
		lines = []string{}
	}
	raw, err := json.Marshal(payload{ContributionID: b.contributionID, Trace: lines})
	if err != nil {
		return nil, "", fmt.Errorf("proof: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", fmt.Errorf("proof: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return Trace(lines), hex.EncodeToString(sum[:]), nil
}
