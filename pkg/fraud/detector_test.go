package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provara/engine/pkg/contribution"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func defaultConfig() Config {
	return Config{
		MaxSubmissions: 3,
		Window:         time.Hour,
		DateTolerance:  30 * 24 * time.Hour,
	}
}

func contrib(id, userID string, urls ...string) contribution.Contribution {
	c := contribution.Contribution{
		ID:          id,
		UserID:      userID,
		Category:    "coding",
		ImpactLevel: "medium",
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

func TestDetect_NoFlagsForCleanContribution(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	flags, err := d.Detect(context.Background(), Input{
		Contribution: contrib("c-1", "u-1", "https://repo/pr/1"),
	})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestDetect_DuplicateEvidenceAcrossContributions(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := d.Detect(ctx, Input{Contribution: contrib("c-1", "u-1", "https://repo/pr/1")})
	require.NoError(t, err)
	assert.Empty(t, first)

	// Different user, same evidence URL modulo case and whitespace.
	second, err := d.Detect(ctx, Input{Contribution: contrib("c-2", "u-2", "  HTTPS://Repo/pr/1 ")})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, KindDuplicateEvidence, second[0].Kind)
	assert.Equal(t, "c-1", second[0].OtherContributionID)
	assert.True(t, HasDuplicate(second))
}

func TestDetect_ReRunOfSameContributionIsNotDuplicate(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	in := Input{Contribution: contrib("c-1", "u-1", "https://repo/pr/1")}

	_, err = d.Detect(ctx, in)
	require.NoError(t, err)
	flags, err := d.Detect(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, flags, "re-evaluation must see its own index entry")
}

func TestDetect_RapidSubmission(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	times := []time.Time{
		baseTime.Add(-50 * time.Minute),
		baseTime.Add(-30 * time.Minute),
		baseTime.Add(-10 * time.Minute),
		baseTime,
	}
	flags, err := d.Detect(context.Background(), Input{
		Contribution:    contrib("c-1", "u-1", "https://repo/pr/1"),
		SubmissionTimes: times,
	})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, KindRapidSubmission, flags[0].Kind)
	assert.Equal(t, 4, flags[0].Count)
	assert.Equal(t, 3600, flags[0].WindowSeconds)
}

func TestDetect_RapidSubmission_OutsideWindowIgnored(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	times := []time.Time{
		baseTime.Add(-26 * time.Hour),
		baseTime.Add(-25 * time.Hour),
		baseTime.Add(-24 * time.Hour),
		baseTime,
	}
	flags, err := d.Detect(context.Background(), Input{
		Contribution:    contrib("c-1", "u-1", "https://repo/pr/1"),
		SubmissionTimes: times,
	})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestDetect_EvidenceInconsistency_Author(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	c := contrib("c-1", "u-1", "https://repo/pr/1")
	c.Evidence[0].DeclaredAuthor = "somebody.else"
	flags, err := d.Detect(context.Background(), Input{
		Contribution: c,
		KnownAliases: []string{"u-1", "J. Doe"},
	})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, KindEvidenceInconsistency, flags[0].Kind)
	assert.Equal(t, "declared_author", flags[0].Field)
	assert.Equal(t, "somebody.else", flags[0].Actual)
}

func TestDetect_EvidenceInconsistency_AliasMatchIsTolerant(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	c := contrib("c-1", "u-1", "https://repo/pr/1")
	c.Evidence[0].DeclaredAuthor = " j. doe "
	flags, err := d.Detect(context.Background(), Input{
		Contribution: c,
		KnownAliases: []string{"u-1", "J. Doe"},
	})
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestDetect_EvidenceInconsistency_Date(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)

	c := contrib("c-1", "u-1", "https://repo/pr/1")
	c.Evidence[0].DeclaredDate = baseTime.Add(-90 * 24 * time.Hour)
	flags, err := d.Detect(context.Background(), Input{Contribution: c, KnownAliases: []string{"u-1"}})
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "declared_date", flags[0].Field)
}

func TestDetect_FlagsCompose(t *testing.T) {
	d, err := NewDetector(defaultConfig(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Detect(ctx, Input{Contribution: contrib("c-1", "u-1", "https://repo/pr/1")})
	require.NoError(t, err)

	c := contrib("c-2", "u-2", "https://repo/pr/1")
	c.Evidence[0].DeclaredAuthor = "stranger"
	times := []time.Time{
		baseTime.Add(-3 * time.Minute),
		baseTime.Add(-2 * time.Minute),
		baseTime.Add(-time.Minute),
		baseTime,
	}
	flags, err := d.Detect(ctx, Input{
		Contribution:    c,
		KnownAliases:    []string{"u-2"},
		SubmissionTimes: times,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, CountKind(flags, KindDuplicateEvidence))
	assert.Equal(t, 1, CountKind(flags, KindRapidSubmission))
	assert.Equal(t, 1, CountKind(flags, KindEvidenceInconsistency))
}

func TestCustomRules_Fire(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rules = []RuleConfig{
		{Name: "no-empty-wallet", Expression: `contribution.wallet_address == ""`},
		{Name: "needs-evidence", Expression: `contribution.evidence_count == 0`},
	}
	d, err := NewDetector(cfg, nil, nil)
	require.NoError(t, err)

	c := contrib("c-1", "u-1")
	flags, err := d.Detect(context.Background(), Input{Contribution: c})
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, KindCustomRule, flags[0].Kind)
	assert.Equal(t, "no-empty-wallet", flags[0].Rule)
	assert.Equal(t, "needs-evidence", flags[1].Rule)
}

func TestCustomRules_MalformedFailsClosed(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rules = []RuleConfig{{Name: "broken", Expression: `contribution.`}}
	_, err := NewDetector(cfg, nil, nil)
	assert.Error(t, err)
}

func TestEvidenceHash_Normalization(t *testing.T) {
	assert.Equal(t, EvidenceHash("https://A/B"), EvidenceHash("  https://a/b "))
	assert.NotEqual(t, EvidenceHash("https://a/b"), EvidenceHash("https://a/c"))
}
