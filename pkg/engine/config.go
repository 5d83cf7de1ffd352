package engine

import (
	"fmt"

	"github.com/provara/engine/pkg/contribution"
	"github.com/provara/engine/pkg/evidence"
	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/reward"
	"github.com/provara/engine/pkg/scoring"
)

// Config is the full engine configuration: every weight, table, and
// threshold the pipeline uses, as named values. The engine fails closed: a
// configuration problem refuses every evaluation rather than silently
// defaulting to zero-cost rewards.
type Config struct {
	Scoring  scoring.Config   `json:"scoring" yaml:"scoring"`
	Reward   reward.Config    `json:"reward" yaml:"reward"`
	Fraud    fraud.Config     `json:"fraud" yaml:"fraud"`
	Evidence evidence.Weights `json:"evidence_weights" yaml:"evidence_weights"`

	// ImpactWeights defines the known impact levels and their normalized
	// weight in [0,1], used for reputation commits.
	ImpactWeights map[string]float64 `json:"impact_weights" yaml:"impact_weights"`
}

// ConfigurationError is fatal at engine startup.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("engine configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

// Validate checks the whole configuration. Any failure is a
// ConfigurationError; the engine must not be constructed over it.
func (c Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return configErr("scoring", err)
	}
	if err := c.Reward.Validate(); err != nil {
		return configErr("reward", err)
	}

	if len(c.Evidence) == 0 {
		return configErr("evidence_weights table is required", nil)
	}
	for _, kind := range contribution.KnownSourceKinds {
		w, ok := c.Evidence[kind]
		if !ok {
			return configErr(fmt.Sprintf("evidence_weights missing source kind %q", kind), nil)
		}
		if w < 0 || w > 1 {
			return configErr(fmt.Sprintf("evidence_weights[%s] must be in [0,1], got %v", kind, w), nil)
		}
	}

	// Rolling-window parameters come from platform policy; their absence is
	// a deployment mistake, not a default.
	if c.Fraud.MaxSubmissions <= 0 {
		return configErr("fraud.max_submissions is required and must be positive", nil)
	}
	if c.Fraud.Window <= 0 {
		return configErr("fraud.window is required and must be positive", nil)
	}

	if len(c.ImpactWeights) == 0 {
		return configErr("impact_weights table is required", nil)
	}
	for impact, w := range c.ImpactWeights {
		if w < 0 || w > 1 {
			return configErr(fmt.Sprintf("impact_weights[%s] must be in [0,1], got %v", impact, w), nil)
		}
	}
	for impact := range c.Reward.BaseCurrency {
		if _, ok := c.ImpactWeights[impact]; !ok {
			return configErr(fmt.Sprintf("reward.base_currency references unknown impact level %q", impact), nil)
		}
	}
	return nil
}
