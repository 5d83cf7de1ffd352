// Package engine orchestrates the verification pipeline: fact preparation,
// the independent evidence/fraud/reputation passes, confidence scoring,
// reward calculation, and proof generation, returning one immutable
// VerificationResult per contribution.
//
// Concurrency model: evaluations for different contributions run fully in
// parallel. Evaluations touching the same user are serialized through the
// reputation tracker's per-user lock so a reputation read can never
// interleave with another evaluation's commit for that user. The
// evidence-hash index is shared across all users and needs only its atomic
// insert-if-absent.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/provara/engine/pkg/audit"
	"github.com/provara/engine/pkg/contribution"
	"github.com/provara/engine/pkg/evidence"
	"github.com/provara/engine/pkg/facts"
	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/observability"
	"github.com/provara/engine/pkg/proof"
	"github.com/provara/engine/pkg/reputation"
	"github.com/provara/engine/pkg/reward"
	"github.com/provara/engine/pkg/scoring"
)

// VerificationResult is the engine's sole output artifact. Immutable once
// produced; keyed by contribution ID for idempotent lookups.
type VerificationResult struct {
	ContributionID string              `json:"contribution_id"`
	Status         contribution.Status `json:"status"`
	Verified       bool                `json:"verified"`
	Confidence     float64             `json:"confidence"`
	FraudFlags     []fraud.Flag        `json:"fraud_flags"`
	TokenAward     uint64              `json:"token_award"`
	SecondaryAward reward.Amount       `json:"secondary_currency_award"`
	ReasoningTrace proof.Trace         `json:"reasoning_trace"`
	ProofHash      string              `json:"proof_hash"`
	// Attestation is a signed token over the proof hash, issued when an
	// attestor is configured. It is derived from the hash, never part of it.
	Attestation string `json:"attestation,omitempty"`
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithFetcher installs the evidence reachability collaborator.
func WithFetcher(f evidence.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithIndex installs the shared duplicate-evidence index (e.g. the Redis
// implementation for multi-instance deployments).
func WithIndex(idx fraud.Index) Option {
	return func(e *Engine) { e.index = idx }
}

// WithAttestor enables signed proof attestations.
func WithAttestor(a *proof.Attestor) Option {
	return func(e *Engine) { e.attestor = a }
}

// WithObservability installs the tracing/metrics provider.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFactStore shares a caller-owned fact store with the engine.
func WithFactStore(s *facts.Store) Option {
	return func(e *Engine) { e.facts = s }
}

// WithAuditLogger records one audit event per finalized evaluation.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) { e.audit = l }
}

// Engine evaluates contributions. Safe for concurrent use.
type Engine struct {
	cfg Config

	facts      *facts.Store
	reputation *reputation.Tracker
	evaluator  *evidence.Evaluator
	detector   *fraud.Detector
	scorer     *scoring.Scorer
	calculator *reward.Calculator
	attestor   *proof.Attestor
	obs        *observability.Provider
	fetcher    evidence.Fetcher
	index      fraud.Index
	logger     *slog.Logger
	audit      audit.Logger

	mu        sync.Mutex
	results   map[string]*VerificationResult
	seen      map[string]bool // submission fact already asserted
	committed map[string]bool // reputation already committed
}

// New validates cfg and builds the engine. Configuration problems are
// returned as *ConfigurationError and nothing is constructed.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		results:   make(map[string]*VerificationResult),
		seen:      make(map[string]bool),
		committed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.facts == nil {
		e.facts = facts.NewStore()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.audit == nil {
		e.audit = audit.NopLogger{}
	}
	e.logger = e.logger.With("component", "engine")
	e.reputation = reputation.NewTracker()
	e.evaluator = evidence.NewEvaluator(cfg.Evidence, e.fetcher, e.logger)

	detector, err := fraud.NewDetector(cfg.Fraud, e.index, e.logger)
	if err != nil {
		return nil, configErr("fraud rules", err)
	}
	e.detector = detector

	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, configErr("scoring", err)
	}
	e.scorer = scorer

	calculator, err := reward.NewCalculator(cfg.Reward)
	if err != nil {
		return nil, configErr("reward", err)
	}
	e.calculator = calculator

	return e, nil
}

// Facts returns the engine's fact store, for asserting user and override
// facts.
func (e *Engine) Facts() *facts.Store { return e.facts }

// Reputation returns the engine's reputation tracker, for inspection.
func (e *Engine) Reputation() *reputation.Tracker { return e.reputation }

// Result returns the immutable result of a prior evaluation, if any.
func (e *Engine) Result(contributionID string) (*VerificationResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.results[contributionID]
	return r, ok
}

// Evaluate runs the full pipeline for one contribution. Re-running with an
// unchanged fact store yields a bit-identical result, including the proof
// hash, so external reward distribution can retry safely.
func (e *Engine) Evaluate(ctx context.Context, c contribution.Contribution) (result *VerificationResult, err error) {
	if e.obs != nil {
		var done func(error)
		ctx, done = e.obs.StartEvaluation(ctx, c.ID)
		defer func() { done(err) }()
	}

	if err = e.validate(c); err != nil {
		return nil, err
	}

	// Idempotent retries: a finished contribution returns its stored result
	// bit for bit. Only a fresh manual override on a flagged contribution
	// forces a re-run.
	if cached, ok := e.Result(c.ID); ok {
		_, hasOverride := e.facts.OverrideFor(c.ID)
		if !(hasOverride && cached.Status == contribution.StatusFlagged) {
			return cached, nil
		}
	}

	// Run IDs identify an evaluation in logs and traces only; they are
	// never part of the result, which must reproduce bit for bit.
	logger := e.logger.With("contribution_id", c.ID, "user_id", c.UserID,
		"run_id", uuid.New().String())

	// Serialize everything touching this user's reputation.
	unlock := e.reputation.LockUser(c.UserID)
	defer unlock()

	e.prepareFacts(c)

	evidenceReport := e.evaluator.Evaluate(ctx, c.Evidence)

	flags, err := e.detector.Detect(ctx, fraud.Input{
		Contribution:    c,
		KnownAliases:    e.facts.IdentityAliases(c.UserID),
		SubmissionTimes: e.facts.SubmissionTimes(c.UserID),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: fraud detection: %w", err)
	}

	reputationScore := e.reputation.Score(c.UserID)

	score := e.scorer.Score(scoring.Input{
		EvidenceScore:   evidenceReport.Aggregate,
		ReputationScore: reputationScore,
		Flags:           flags,
	})

	status := e.status(score, flags)
	overridden := false
	if override, ok := e.facts.OverrideFor(c.ID); ok && status == contribution.StatusFlagged {
		// A human review moved a flagged contribution; honor the override
		// and record it in the trace.
		status = override
		overridden = true
	}
	verified := status == contribution.StatusVerified

	breakdown := e.calculator.Compute(c.Category, c.ImpactLevel, score.Confidence, verified)

	builder := proof.NewBuilder(c.ID).
		EvidenceScore(evidenceReport.Aggregate, len(c.Evidence)).
		ReputationScore(reputationScore).
		ConsistencyScore(score.ConsistencyScore).
		FraudFlags(flags).
		Confidence(score, e.scorer.Threshold())
	if overridden {
		builder.Override(string(status))
	}
	builder.Reward(breakdown)

	trace, hash, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("engine: proof: %w", err)
	}

	result = &VerificationResult{
		ContributionID: c.ID,
		Status:         status,
		Verified:       verified,
		Confidence:     score.Confidence,
		FraudFlags:     flags,
		TokenAward:     breakdown.TokenAward,
		SecondaryAward: breakdown.SecondaryAward,
		ReasoningTrace: trace,
		ProofHash:      hash,
	}

	if e.attestor != nil {
		// Issued at the contribution's creation time so re-runs reproduce
		// the attestation bit for bit.
		attestation, aerr := e.attestor.Attest(c.ID, hash, verified, c.CreatedAt)
		if aerr != nil {
			return nil, fmt.Errorf("engine: attestation: %w", aerr)
		}
		result.Attestation = attestation
	}

	e.finalize(c, status, result)

	if aerr := e.audit.Record(ctx, audit.Event{
		ContributionID: c.ID,
		UserID:         c.UserID,
		Status:         status,
		Verified:       verified,
		FlagCount:      len(flags),
		TokenAward:     breakdown.TokenAward,
		ProofHash:      hash,
		Overridden:     overridden,
	}); aerr != nil {
		logger.WarnContext(ctx, "audit record failed", "error", aerr)
	}

	logger.InfoContext(ctx, "evaluation complete",
		"status", status,
		"confidence", score.Confidence,
		"flags", len(flags),
		"token_award", breakdown.TokenAward,
		"proof_hash", hash,
	)
	return result, nil
}

// validate layers the configuration-aware checks over the structural ones.
func (e *Engine) validate(c contribution.Contribution) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !e.cfg.Reward.HasCategory(c.Category) {
		return &contribution.ValidationError{
			Field:  "category",
			Reason: fmt.Sprintf("unknown category %q", c.Category),
		}
	}
	if _, ok := e.cfg.ImpactWeights[c.ImpactLevel]; !ok {
		return &contribution.ValidationError{
			Field:  "impact_level",
			Reason: fmt.Sprintf("unknown impact level %q", c.ImpactLevel),
		}
	}
	return nil
}

// prepareFacts seeds the user's reputation from platform-provided facts and
// records this submission, both exactly once per contribution.
func (e *Engine) prepareFacts(c contribution.Contribution) {
	skills := make([]string, 0)
	for skill := range e.facts.SkillLevels(c.UserID) {
		skills = append(skills, skill)
	}
	e.reputation.Seed(c.UserID, reputation.Record{
		VerifiedCount:    e.facts.PriorVerifiedCount(c.UserID),
		EndorsementCount: e.facts.Endorsements(c.UserID),
	}, skills)

	e.mu.Lock()
	first := !e.seen[c.ID]
	e.seen[c.ID] = true
	e.mu.Unlock()
	if first {
		e.facts.Assert(facts.Submission(c.UserID, c.CreatedAt))
	}
}

// status maps the scorer verdict and flags onto the contribution state
// machine. Any fraud flag forces Flagged: reward withheld, human review may
// override.
func (e *Engine) status(score scoring.Result, flags []fraud.Flag) contribution.Status {
	switch {
	case len(flags) > 0:
		return contribution.StatusFlagged
	case score.Verified:
		return contribution.StatusVerified
	default:
		return contribution.StatusRejected
	}
}

// finalize stores the immutable result and commits reputation exactly once
// per contribution that reached Verified or Rejected. Flagged withholds the
// commit until a manual override resolves it.
func (e *Engine) finalize(c contribution.Contribution, status contribution.Status, result *VerificationResult) {
	e.mu.Lock()
	commit := !e.committed[c.ID] &&
		(status == contribution.StatusVerified || status == contribution.StatusRejected)
	if commit {
		e.committed[c.ID] = true
	}
	e.results[c.ID] = result
	e.mu.Unlock()

	if commit {
		e.reputation.Commit(c.UserID, reputation.Outcome{
			Verified:     status == contribution.StatusVerified,
			Skill:        c.Category,
			ImpactWeight: e.cfg.ImpactWeights[c.ImpactLevel],
		})
		e.facts.Assert(facts.Verification(c.ID, status))
	}
}
