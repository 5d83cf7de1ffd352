package fraud

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/provara/engine/pkg/contribution"
)

// RuleConfig is an operator-defined fraud check written as a CEL expression
// over the contribution. An expression evaluating to true emits one
// custom_rule flag named after the rule.
type RuleConfig struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

type compiledRule struct {
	name    string
	program cel.Program
}

// compileRules builds the CEL environment and compiles every rule up front.
// A malformed expression is a deployment error and fails closed.
func compileRules(rules []RuleConfig) ([]compiledRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("contribution", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("fraud rules: cel environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("fraud rules: rule with empty name")
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("fraud rules: compile %q: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("fraud rules: program %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, program: prg})
	}
	return compiled, nil
}

// evalRules evaluates every compiled rule against the contribution.
func (d *Detector) evalRules(c contribution.Contribution) ([]Flag, error) {
	if len(d.rules) == 0 {
		return nil, nil
	}

	input := map[string]any{
		"contribution": map[string]any{
			"id":             c.ID,
			"user_id":        c.UserID,
			"title":          c.Title,
			"description":    c.Description,
			"category":       c.Category,
			"impact_level":   c.ImpactLevel,
			"wallet_address": c.WalletAddress,
			"evidence_count": len(c.Evidence),
		},
	}

	var flags []Flag
	for _, rule := range d.rules {
		out, _, err := rule.program.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("fraud rules: eval %q: %w", rule.name, err)
		}
		fired, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("fraud rules: %q did not evaluate to bool", rule.name)
		}
		if fired {
			flags = append(flags, Flag{Kind: KindCustomRule, Rule: rule.name})
		}
	}
	return flags, nil
}
