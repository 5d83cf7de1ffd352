package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/provara/engine/pkg/engine"
	"github.com/provara/engine/pkg/evidence"
	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/reward"
	"github.com/provara/engine/pkg/scoring"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://provara.schemas.local/engine-config.schema.json"

// Duration wraps time.Duration so policy files can say "1h" or "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// File is the on-disk YAML policy document. Scoring and reward sections map
// straight onto their package configs; the fraud section carries durations
// as strings.
type File struct {
	Scoring         scoring.Config     `yaml:"scoring"`
	Reward          reward.Config      `yaml:"reward"`
	Fraud           fraudSection       `yaml:"fraud"`
	EvidenceWeights evidence.Weights   `yaml:"evidence_weights"`
	ImpactWeights   map[string]float64 `yaml:"impact_weights"`
}

type fraudSection struct {
	MaxSubmissions int                `yaml:"max_submissions"`
	Window         Duration           `yaml:"window"`
	DateTolerance  Duration           `yaml:"date_tolerance"`
	Rules          []fraud.RuleConfig `yaml:"rules"`
}

// Engine converts the file form into the engine's validated configuration
// shape. Validation itself happens in engine.Config.Validate.
func (f File) Engine() engine.Config {
	return engine.Config{
		Scoring: f.Scoring,
		Reward:  f.Reward,
		Fraud: fraud.Config{
			MaxSubmissions: f.Fraud.MaxSubmissions,
			Window:         time.Duration(f.Fraud.Window),
			DateTolerance:  time.Duration(f.Fraud.DateTolerance),
			Rules:          f.Fraud.Rules,
		},
		Evidence:      f.EvidenceWeights,
		ImpactWeights: f.ImpactWeights,
	}
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return schema
}

// Load reads, validates, and converts a YAML policy file. Any problem comes
// back as *engine.ConfigurationError so startup fails closed.
func Load(path string) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, &engine.ConfigurationError{
			Reason: fmt.Sprintf("read %s", path),
			Err:    err,
		}
	}
	return Parse(data)
}

// Parse validates raw YAML against the embedded JSON Schema, decodes it
// strictly (unknown keys are errors), and runs the engine's semantic checks.
func Parse(data []byte) (engine.Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return engine.Config{}, &engine.ConfigurationError{Reason: "parse yaml", Err: err}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return engine.Config{}, &engine.ConfigurationError{Reason: "schema validation", Err: err}
	}

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return engine.Config{}, &engine.ConfigurationError{Reason: "decode yaml", Err: err}
	}

	cfg := file.Engine()
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}
