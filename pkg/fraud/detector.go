package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/provara/engine/pkg/contribution"
)

// Config holds the tunable fraud-check parameters. The rolling-window
// parameters come from platform policy and are required configuration, not
// defaults baked into the engine.
type Config struct {
	// MaxSubmissions is N: more than N submissions inside Window flags the
	// user.
	MaxSubmissions int
	// Window is W, the rolling window for rapid-submission detection.
	Window time.Duration
	// DateTolerance is how far a declared evidence date may drift from the
	// contribution's creation time before it is flagged.
	DateTolerance time.Duration
	// Rules are optional operator-defined CEL checks.
	Rules []RuleConfig
}

// Input carries everything the detector needs for one contribution. The
// engine prepares it from the fact store so the detector stays a pure
// pattern matcher plus one index lookup.
type Input struct {
	Contribution    contribution.Contribution
	KnownAliases    []string    // identity facts for the submitting user
	SubmissionTimes []time.Time // prior submission timestamps, this one included
}

// Detector runs the independent fraud checks. Each check yields zero or one
// flag; checks are composable and never short-circuit each other.
type Detector struct {
	cfg    Config
	index  Index
	rules  []compiledRule
	logger *slog.Logger
}

// NewDetector builds a detector over the shared evidence index. Malformed
// CEL rules are a construction error so a bad deployment fails closed.
func NewDetector(cfg Config, index Index, logger *slog.Logger) (*Detector, error) {
	if index == nil {
		index = NewMemoryIndex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, index: index, rules: rules, logger: logger.With("component", "fraud")}, nil
}

// Detect runs every check and returns the collected flags in a fixed order
// (duplicate, rapid, inconsistency, custom rules) so downstream traces stay
// deterministic.
func (d *Detector) Detect(ctx context.Context, in Input) ([]Flag, error) {
	var flags []Flag

	dup, err := d.checkDuplicateEvidence(ctx, in.Contribution)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		flags = append(flags, *dup)
	}

	if rapid := d.checkRapidSubmission(in); rapid != nil {
		flags = append(flags, *rapid)
	}

	flags = append(flags, d.checkEvidenceInconsistency(in)...)

	custom, err := d.evalRules(in.Contribution)
	if err != nil {
		return nil, err
	}
	flags = append(flags, custom...)

	return flags, nil
}

// checkDuplicateEvidence hashes every evidence URL/content and claims each
// hash in the shared index. A hash already owned by a different contribution
// (by any user) yields one flag. Re-evaluating the same contribution finds
// its own ID as owner and is not a duplicate, which keeps re-runs idempotent.
func (d *Detector) checkDuplicateEvidence(ctx context.Context, c contribution.Contribution) (*Flag, error) {
	for _, item := range c.Evidence {
		owner, _, err := d.index.InsertIfAbsent(ctx, EvidenceHash(item.URLOrHash), c.ID)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if owner != c.ID {
			return &Flag{Kind: KindDuplicateEvidence, OtherContributionID: owner}, nil
		}
	}
	return nil, nil
}

// checkRapidSubmission counts the user's submissions inside the rolling
// window ending at the contribution's creation time.
func (d *Detector) checkRapidSubmission(in Input) *Flag {
	if d.cfg.MaxSubmissions <= 0 || d.cfg.Window <= 0 {
		return nil
	}
	end := in.Contribution.CreatedAt
	start := end.Add(-d.cfg.Window)
	count := 0
	for _, ts := range in.SubmissionTimes {
		if !ts.Before(start) && !ts.After(end) {
			count++
		}
	}
	if count > d.cfg.MaxSubmissions {
		return &Flag{
			Kind:          KindRapidSubmission,
			WindowSeconds: int(d.cfg.Window.Seconds()),
			Count:         count,
		}
	}
	return nil
}

// checkEvidenceInconsistency compares declared author/date on each evidence
// item against the user's identity facts and the contribution's creation
// time. One flag per mismatched field, deduplicated by field.
func (d *Detector) checkEvidenceInconsistency(in Input) []Flag {
	var flags []Flag
	seen := make(map[string]bool)

	for _, item := range in.Contribution.Evidence {
		if item.DeclaredAuthor != "" && !seen["declared_author"] {
			if !matchesAlias(item.DeclaredAuthor, in.KnownAliases) {
				flags = append(flags, Flag{
					Kind:     KindEvidenceInconsistency,
					Field:    "declared_author",
					Expected: strings.Join(in.KnownAliases, "|"),
					Actual:   item.DeclaredAuthor,
				})
				seen["declared_author"] = true
			}
		}
		if !item.DeclaredDate.IsZero() && !seen["declared_date"] {
			drift := item.DeclaredDate.Sub(in.Contribution.CreatedAt)
			if drift < 0 {
				drift = -drift
			}
			if d.cfg.DateTolerance > 0 && drift > d.cfg.DateTolerance {
				flags = append(flags, Flag{
					Kind:     KindEvidenceInconsistency,
					Field:    "declared_date",
					Expected: in.Contribution.CreatedAt.UTC().Format(time.RFC3339),
					Actual:   item.DeclaredDate.UTC().Format(time.RFC3339),
				})
				seen["declared_date"] = true
			}
		}
	}
	return flags
}

func matchesAlias(author string, aliases []string) bool {
	needle := strings.ToLower(strings.TrimSpace(author))
	for _, a := range aliases {
		if strings.ToLower(strings.TrimSpace(a)) == needle {
			return true
		}
	}
	return false
}
