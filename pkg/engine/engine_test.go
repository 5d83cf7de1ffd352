package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/provara/engine/pkg/contribution"
	"github.com/provara/engine/pkg/evidence"
	"github.com/provara/engine/pkg/facts"
	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/proof"
	"github.com/provara/engine/pkg/reward"
	"github.com/provara/engine/pkg/scoring"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Scoring: scoring.Config{
			EvidenceWeight:        0.5,
			ReputationWeight:      0.3,
			ConsistencyWeight:     0.2,
			InconsistencyStep:     0.25,
			FlagPenalty:           0.2,
			DuplicatePenalty:      0.5,
			VerificationThreshold: 0.7,
		},
		Reward: reward.Config{
			BaseTokens: map[string]uint64{
				"coding":        75,
				"design":        60,
				"documentation": 45,
				"community":     30,
			},
			QualityBonusCap: 50,
			BaseCurrency: map[string]string{
				"low":      "0.5",
				"medium":   "1.5",
				"high":     "4",
				"critical": "10",
			},
			Currency:                  "USDC",
			CurrencyScale:             6,
			MinConfidenceForSecondary: 0.75,
			DustFloorMinorUnits:       10_000,
		},
		Fraud: fraud.Config{
			MaxSubmissions: 5,
			Window:         time.Hour,
			DateTolerance:  30 * 24 * time.Hour,
		},
		Evidence: evidence.DefaultWeights(),
		ImpactWeights: map[string]float64{
			"low":      0.25,
			"medium":   0.5,
			"high":     0.75,
			"critical": 1.0,
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testConfig(), opts...)
	require.NoError(t, err)
	return e
}

func contrib(id, userID string, urls ...string) contribution.Contribution {
	c := contribution.Contribution{
		ID:          id,
		UserID:      userID,
		Title:       "fix scheduler race",
		Category:    "coding",
		ImpactLevel: "high",
		CreatedAt:   baseTime,
	}
	for _, u := range urls {
		c.Evidence = append(c.Evidence, contribution.EvidenceItem{
			SourceKind: contribution.SourceCodeRepo,
			URLOrHash:  u,
		})
	}
	return c
}

func TestEvaluate_EstablishedUserVerified(t *testing.T) {
	e := newTestEngine(t)
	e.Facts().Assert(facts.PriorVerified("u-1", 10))

	res, err := e.Evaluate(context.Background(), contrib("c-1", "u-1", "https://repo/pr/1"))
	require.NoError(t, err)

	assert.True(t, res.Verified)
	assert.Equal(t, contribution.StatusVerified, res.Status)
	assert.Empty(t, res.FraudFlags)

	// evidence 1.0, reputation 20/110, consistency 1.0:
	// confidence = 0.5 + 0.3*(2/11) + 0.2 ~ 0.754545.
	assert.InDelta(t, 0.754545, res.Confidence, 1e-6)
	// 75 base + floor(0.754545 * 50) = 75 + 37.
	assert.Equal(t, uint64(112), res.TokenAward)

	// 4 USDC * (0.5 + 0.754545) at scale 6.
	assert.Equal(t, int64(5_018_180), res.SecondaryAward.MinorUnits)
	assert.Equal(t, "USDC", res.SecondaryAward.Currency)

	assert.NotEmpty(t, res.ProofHash)
	assert.Contains(t, res.ReasoningTrace, "verdict: verified")
}

func TestEvaluate_LowConfidenceRejected(t *testing.T) {
	e := newTestEngine(t)

	// Fresh user, no evidence: confidence = 0.2, well under the threshold.
	res, err := e.Evaluate(context.Background(), contrib("c-1", "u-new"))
	require.NoError(t, err)

	assert.False(t, res.Verified)
	assert.Equal(t, contribution.StatusRejected, res.Status)
	assert.Zero(t, res.TokenAward)
	assert.Zero(t, res.SecondaryAward.MinorUnits)
	assert.Contains(t, res.ReasoningTrace, "evidence: no evidence provided, score 0.000")
}

func TestEvaluate_UnknownUserCompletes(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Evaluate(context.Background(), contrib("c-1", "u-nobody", "https://repo/pr/1"))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Zero(t, e.Reputation().Score("u-other"))
	assert.Contains(t, res.ReasoningTrace, "reputation: score 0.000")
}

func TestEvaluate_DuplicateEvidenceFlagged(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Evaluate(context.Background(), contrib("c-1", "u-1", "https://repo/pr/1"))
	require.NoError(t, err)

	// A different user reusing the same evidence URL is flagged and never
	// auto-verified, whatever the rest of the signals say.
	res, err := e.Evaluate(context.Background(), contrib("c-2", "u-2", "https://repo/pr/1"))
	require.NoError(t, err)

	require.Len(t, res.FraudFlags, 1)
	assert.Equal(t, fraud.KindDuplicateEvidence, res.FraudFlags[0].Kind)
	assert.Equal(t, "c-1", res.FraudFlags[0].OtherContributionID)
	assert.Equal(t, contribution.StatusFlagged, res.Status)
	assert.False(t, res.Verified)
	assert.Zero(t, res.TokenAward)
}

func TestEvaluate_RapidSubmissionFlagged(t *testing.T) {
	cfg := testConfig()
	cfg.Fraud.MaxSubmissions = 2
	e, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		c := contrib(fmt.Sprintf("c-%d", i), "u-1", fmt.Sprintf("https://repo/pr/%d", i))
		c.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		res, err := e.Evaluate(ctx, c)
		require.NoError(t, err)
		assert.False(t, fraud.HasDuplicate(res.FraudFlags))
		assert.NotEqual(t, contribution.StatusFlagged, res.Status)
	}

	c := contrib("c-3", "u-1", "https://repo/pr/3")
	c.CreatedAt = baseTime.Add(3 * time.Minute)
	res, err := e.Evaluate(ctx, c)
	require.NoError(t, err)

	require.Len(t, res.FraudFlags, 1)
	assert.Equal(t, fraud.KindRapidSubmission, res.FraudFlags[0].Kind)
	assert.Equal(t, contribution.StatusFlagged, res.Status)
}

func TestEvaluate_RerunReturnsIdenticalResult(t *testing.T) {
	e := newTestEngine(t)
	e.Facts().Assert(facts.PriorVerified("u-1", 10))
	ctx := context.Background()
	c := contrib("c-1", "u-1", "https://repo/pr/1")

	first, err := e.Evaluate(ctx, c)
	require.NoError(t, err)
	second, err := e.Evaluate(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.ProofHash, second.ProofHash)

	// Reputation committed exactly once despite the retry.
	assert.Equal(t, 11, e.Reputation().Record("u-1").VerifiedCount)
}

func TestEvaluate_ProofHashReproducibleAcrossEngines(t *testing.T) {
	ctx := context.Background()
	c := contrib("c-1", "u-1", "https://repo/pr/1")

	hash := func() string {
		e := newTestEngine(t)
		e.Facts().Assert(facts.PriorVerified("u-1", 10))
		res, err := e.Evaluate(ctx, c)
		require.NoError(t, err)
		return res.ProofHash
	}

	assert.Equal(t, hash(), hash())
}

func TestEvaluate_ManualOverrideResolvesFlagged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	c := contrib("c-1", "u-1")
	c.Evidence = []contribution.EvidenceItem{{
		SourceKind:     contribution.SourceDocument,
		URLOrHash:      "https://docs/design.pdf",
		DeclaredAuthor: "somebody-else",
	}}

	res, err := e.Evaluate(ctx, c)
	require.NoError(t, err)
	require.Equal(t, contribution.StatusFlagged, res.Status)
	require.Len(t, res.FraudFlags, 1)
	assert.Equal(t, fraud.KindEvidenceInconsistency, res.FraudFlags[0].Kind)

	// Flagged withholds the reputation commit until review resolves it.
	assert.Zero(t, e.Reputation().Record("u-1").VerifiedCount)

	e.Facts().Assert(facts.ManualOverride("c-1", contribution.StatusVerified))

	resolved, err := e.Evaluate(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, contribution.StatusVerified, resolved.Status)
	assert.True(t, resolved.Verified)
	assert.Contains(t, resolved.ReasoningTrace, "manual override applied: verified")
	// Confidence keeps the flag penalty: 0.5*0.8 + 0.2*0.75 - 0.2 = 0.35,
	// so tokens are 75 + floor(0.35 * 50).
	assert.Equal(t, uint64(92), resolved.TokenAward)
	// Below the secondary gate.
	assert.Zero(t, resolved.SecondaryAward.MinorUnits)

	assert.Equal(t, 1, e.Reputation().Record("u-1").VerifiedCount)

	// A further retry returns the resolved result unchanged.
	again, err := e.Evaluate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, resolved, again)
	assert.Equal(t, 1, e.Reputation().Record("u-1").VerifiedCount)
}

func TestEvaluate_AttestationVerifies(t *testing.T) {
	attestor, err := proof.NewAttestor([]byte("0123456789abcdef0123456789abcdef"), "")
	require.NoError(t, err)
	e := newTestEngine(t, WithAttestor(attestor))

	res, err := e.Evaluate(context.Background(), contrib("c-1", "u-1", "https://repo/pr/1"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Attestation)

	claims, err := attestor.Verify(res.Attestation)
	require.NoError(t, err)
	assert.Equal(t, res.ProofHash, claims.ProofHash)
	assert.Equal(t, res.Verified, claims.Verified)
	assert.Equal(t, "c-1", claims.Subject)
}

func TestEvaluate_ValidationErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		munge func(*contribution.Contribution)
		field string
	}{
		{"missing user", func(c *contribution.Contribution) { c.UserID = "" }, "user_id"},
		{"unknown category", func(c *contribution.Contribution) { c.Category = "cooking" }, "category"},
		{"unknown impact", func(c *contribution.Contribution) { c.ImpactLevel = "cosmic" }, "impact_level"},
		{"blank evidence url", func(c *contribution.Contribution) {
			c.Evidence[0].URLOrHash = "  "
		}, "evidence[0].url_or_hash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := contrib("c-1", "u-1", "https://repo/pr/1")
			tc.munge(&c)
			_, err := e.Evaluate(ctx, c)
			var verr *contribution.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring.EvidenceWeight = 0.9 // weights no longer sum to 1

	_, err := New(cfg)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestNew_RejectsMalformedRule(t *testing.T) {
	cfg := testConfig()
	cfg.Fraud.Rules = []fraud.RuleConfig{{Name: "broken", Expression: "contribution."}}

	_, err := New(cfg)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestEvaluate_ConcurrentUsersComplete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := contrib(
				fmt.Sprintf("c-%d", i),
				fmt.Sprintf("u-%d", i%4),
				fmt.Sprintf("https://repo/pr/%d", i),
			)
			c.CreatedAt = baseTime.Add(time.Duration(i) * time.Hour)
			_, errs[i] = e.Evaluate(ctx, c)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "contribution %d", i)
	}
	for i := range errs {
		_, ok := e.Result(fmt.Sprintf("c-%d", i))
		assert.True(t, ok)
	}
}

func TestEvaluate_CustomRuleFlag(t *testing.T) {
	cfg := testConfig()
	cfg.Fraud.Rules = []fraud.RuleConfig{{
		Name:       "wallet-required-for-high-impact",
		Expression: `contribution.impact_level == "high" && contribution.wallet_address == ""`,
	}}
	e, err := New(cfg)
	require.NoError(t, err)

	res, err := e.Evaluate(context.Background(), contrib("c-1", "u-1", "https://repo/pr/1"))
	require.NoError(t, err)

	require.Len(t, res.FraudFlags, 1)
	assert.Equal(t, fraud.KindCustomRule, res.FraudFlags[0].Kind)
	assert.Equal(t, "wallet-required-for-high-impact", res.FraudFlags[0].Rule)
	assert.Equal(t, contribution.StatusFlagged, res.Status)
}

func TestEvaluate_ContextCancelledError(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With the in-memory index the pipeline has no blocking I/O, so a
	// cancelled context still completes; the engine never invents failures.
	_, err := e.Evaluate(ctx, contrib("c-1", "u-1", "https://repo/pr/1"))
	require.NoError(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}
