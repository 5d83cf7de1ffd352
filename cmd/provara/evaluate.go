package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/provara/engine/pkg/audit"
	"github.com/provara/engine/pkg/config"
	"github.com/provara/engine/pkg/contribution"
	"github.com/provara/engine/pkg/engine"
	"github.com/provara/engine/pkg/evidence"
	"github.com/provara/engine/pkg/facts"
	"github.com/provara/engine/pkg/fraud"
	"github.com/provara/engine/pkg/observability"
	"github.com/provara/engine/pkg/proof"
)

var (
	factsFile  string
	checkURLs  bool
	evalOutput string
	auditPath  string
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <contribution.json>",
	Short: "Evaluate one contribution and print the verification result",
	Long: `Evaluate loads the policy file, seeds the fact store, runs the full
verification pipeline for a single contribution, and prints the resulting
VerificationResult as JSON, including the reasoning trace and proof hash.

Example:
  provara evaluate contribution.json --config policy.yaml --facts facts.json
  provara evaluate contribution.json --check-urls -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&factsFile, "facts", "", "JSON file with platform facts to seed the store")
	evaluateCmd.Flags().BoolVar(&checkURLs, "check-urls", false, "probe evidence URLs for reachability")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "write the result JSON to a file instead of stdout")
	evaluateCmd.Flags().StringVar(&auditPath, "audit-log", "", "append one JSON audit event per evaluation to this file")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := readContribution(args[0])
	if err != nil {
		return err
	}

	eng, shutdown, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	result, err := eng.Evaluate(ctx, c)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if evalOutput != "" {
		return os.WriteFile(evalOutput, append(out, '\n'), 0o644)
	}
	cmd.Println(string(out))
	return nil
}

// buildEngine assembles the engine from the policy file, runtime environment,
// and optional fact seed. The returned shutdown func flushes telemetry.
func buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	rt := config.LoadRuntime()
	logger := newLogger(rt.LogLevel)

	opts := []engine.Option{engine.WithLogger(logger)}
	shutdown := func() {}

	if rt.RedisAddr != "" {
		opts = append(opts, engine.WithIndex(fraud.NewRedisIndex(rt.RedisAddr, "", 0, 0)))
	}
	if rt.AttestationKey != "" {
		attestor, err := proof.NewAttestor([]byte(rt.AttestationKey), rt.AttestationIssuer)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithAttestor(attestor))
	}
	if checkURLs {
		fetcher := evidence.NewCachedFetcher(&evidence.HTTPFetcher{}, 5*time.Minute, 5, 2, 10*time.Second)
		opts = append(opts, engine.WithFetcher(fetcher))
	}
	if rt.TracingEnabled {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = rt.OTLPEndpoint
		obsCfg.Enabled = true
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithObservability(provider))
		shutdown = func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(sctx)
		}
	}
	if factsFile != "" {
		store, err := readFacts(factsFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, engine.WithFactStore(store))
	}
	if auditPath != "" {
		f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit log: %w", err)
		}
		opts = append(opts, engine.WithAuditLogger(audit.NewLoggerWithWriter(f)))
		flush := shutdown
		shutdown = func() {
			_ = f.Close()
			flush()
		}
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return eng, shutdown, nil
}

func readContribution(path string) (contribution.Contribution, error) {
	var c contribution.Contribution
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read contribution: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse contribution: %w", err)
	}
	return c, nil
}

func readFacts(path string) (*facts.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	var fs []facts.Fact
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse facts: %w", err)
	}
	store := facts.NewStore()
	store.AssertAll(fs...)
	return store, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
