package reward

import (
	"fmt"
	"math"
	"math/big"
	"sort"
)

// confidenceScale quantizes confidence to micro-units before any reward
// math, so the token bonus and the currency multiplier are computed on exact
// integers rather than raw floats.
const confidenceScale = 1_000_000

// Multiplier bounds for the secondary-currency award:
// clamp(confidence + 0.5, 0.5, 2.0) in micro-units.
const (
	multiplierOffsetMicro = 500_000
	multiplierFloorMicro  = 500_000
	multiplierCeilMicro   = 2_000_000
)

// Config is the fixed reward configuration.
type Config struct {
	// BaseTokens maps each contribution category to its fixed starting
	// token amount. Distinct categories must map to distinct bases.
	BaseTokens map[string]uint64 `json:"base_tokens" yaml:"base_tokens"`

	// QualityBonusCap caps the confidence-scaled token bonus.
	QualityBonusCap uint64 `json:"quality_bonus_cap" yaml:"quality_bonus_cap"`

	// BaseCurrency maps each impact level to a decimal base amount of the
	// secondary currency. Empty disables secondary awards entirely.
	BaseCurrency map[string]string `json:"base_currency" yaml:"base_currency"`

	// Currency and CurrencyScale describe the secondary currency's smallest
	// unit (e.g. scale 6 for a token with six decimals).
	Currency      string `json:"currency" yaml:"currency"`
	CurrencyScale int    `json:"currency_scale" yaml:"currency_scale"`

	// MinConfidenceForSecondary gates the secondary award.
	MinConfidenceForSecondary float64 `json:"min_confidence_for_secondary" yaml:"min_confidence_for_secondary"`

	// DustFloorMinorUnits suppresses sub-floor payouts to avoid dust
	// transactions. Required whenever BaseCurrency is configured.
	DustFloorMinorUnits int64 `json:"dust_floor_minor_units" yaml:"dust_floor_minor_units"`
}

// Validate reports configuration errors: missing tables, colliding category
// bases, malformed decimals. The engine fails closed on any of them.
func (c Config) Validate() error {
	if len(c.BaseTokens) == 0 {
		return fmt.Errorf("reward: base_tokens table is required")
	}
	seen := make(map[uint64]string, len(c.BaseTokens))
	categories := make([]string, 0, len(c.BaseTokens))
	for cat := range c.BaseTokens {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		base := c.BaseTokens[cat]
		if other, dup := seen[base]; dup {
			return fmt.Errorf("reward: categories %q and %q share base amount %d", other, cat, base)
		}
		seen[base] = cat
	}

	if len(c.BaseCurrency) > 0 {
		if c.Currency == "" {
			return fmt.Errorf("reward: currency code is required with a base_currency table")
		}
		if c.CurrencyScale < 0 || c.CurrencyScale > 18 {
			return fmt.Errorf("reward: currency_scale must be in [0,18], got %d", c.CurrencyScale)
		}
		if c.DustFloorMinorUnits <= 0 {
			return fmt.Errorf("reward: dust_floor_minor_units is required with a base_currency table")
		}
		if c.MinConfidenceForSecondary <= 0 || c.MinConfidenceForSecondary > 1 {
			return fmt.Errorf("reward: min_confidence_for_secondary must be in (0,1], got %v", c.MinConfidenceForSecondary)
		}
		for impact, amount := range c.BaseCurrency {
			if _, err := ParseDecimal(amount); err != nil {
				return fmt.Errorf("reward: base_currency[%s]: %w", impact, err)
			}
		}
	}
	return nil
}

// HasCategory reports whether the category has a configured base amount.
func (c Config) HasCategory(category string) bool {
	_, ok := c.BaseTokens[category]
	return ok
}

// HasImpactLevel reports whether the impact level is known. With no
// secondary-currency table every impact level is acceptable for token-only
// deployments.
func (c Config) HasImpactLevel(impact string) bool {
	if len(c.BaseCurrency) == 0 {
		return true
	}
	_, ok := c.BaseCurrency[impact]
	return ok
}

// Breakdown explains how an award was computed, for the reasoning trace.
type Breakdown struct {
	BaseTokens      uint64 `json:"base_tokens"`
	BonusTokens     uint64 `json:"bonus_tokens"`
	TokenAward      uint64 `json:"token_award"`
	SecondaryAward  Amount `json:"secondary_award"`
	SecondaryGated  bool   `json:"secondary_gated"`  // below min confidence
	DustSuppressed  bool   `json:"dust_suppressed"`  // computed but under the floor
	MultiplierMicro int64  `json:"multiplier_micro"` // confidence multiplier in micro-units
}

// Calculator computes awards under a validated Config.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a Calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// quantize converts a confidence float to micro-units, rounding to nearest.
func quantize(confidence float64) int64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return confidenceScale
	}
	return int64(math.Round(confidence * confidenceScale))
}

// Compute returns the full award for a contribution. An unverified
// contribution is awarded nothing.
func (c *Calculator) Compute(category, impactLevel string, confidence float64, verified bool) Breakdown {
	b := Breakdown{SecondaryAward: Amount{Currency: c.cfg.Currency, Scale: c.cfg.CurrencyScale}}
	if !verified {
		return b
	}

	confMicro := quantize(confidence)

	// token_award = base_amount(category) + floor(confidence * bonus_cap),
	// computed in integer micro-units so the floor is exact.
	b.BaseTokens = c.cfg.BaseTokens[category]
	b.BonusTokens = uint64(confMicro) * c.cfg.QualityBonusCap / confidenceScale
	b.TokenAward = b.BaseTokens + b.BonusTokens

	if len(c.cfg.BaseCurrency) == 0 {
		return b
	}
	base, ok := c.cfg.BaseCurrency[impactLevel]
	if !ok {
		return b
	}

	if confidence < c.cfg.MinConfidenceForSecondary {
		b.SecondaryGated = true
		return b
	}

	multMicro := confMicro + multiplierOffsetMicro
	if multMicro < multiplierFloorMicro {
		multMicro = multiplierFloorMicro
	}
	if multMicro > multiplierCeilMicro {
		multMicro = multiplierCeilMicro
	}
	b.MultiplierMicro = multMicro

	// base and multiplier stay exact rationals until the one truncation at
	// the smallest-unit step.
	baseRat, err := ParseDecimal(base)
	if err != nil {
		// Config validation already rejected malformed decimals.
		return b
	}
	product := new(big.Rat).Mul(baseRat, big.NewRat(multMicro, confidenceScale))
	minor := ScaleToMinor(product, c.cfg.CurrencyScale)

	if minor < c.cfg.DustFloorMinorUnits {
		b.DustSuppressed = minor > 0
		return b
	}
	b.SecondaryAward.MinorUnits = minor
	return b
}
