package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/danshapiro/hive/internal/config"
	"github.com/danshapiro/hive/internal/engine"
	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/prompt"
	"github.com/danshapiro/hive/internal/run"
	"github.com/danshapiro/hive/internal/score"
	"github.com/danshapiro/hive/internal/specialist"
	"github.com/danshapiro/hive/internal/workorder"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	case "score":
		cmdScore(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  hive run --order <order.json> [--policies <policies.yaml>] [--ladder]")
	fmt.Fprintln(os.Stderr, "  hive validate --policies <policies.yaml>")
	fmt.Fprintln(os.Stderr, "  hive score --result <result.json>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "run uses the built-in dry-run transport: every specialist call returns a")
	fmt.Fprintln(os.Stderr, "canned, schema-valid payload so policies can be exercised without a provider.")
}

func cmdRun(args []string) {
	var orderPath string
	var policiesPath string
	var ladder bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ladder":
			ladder = true
		case "--order":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--order requires a value")
				os.Exit(1)
			}
			orderPath = args[i]
		case "--policies":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--policies requires a value")
				os.Exit(1)
			}
			policiesPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	if orderPath == "" {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if policiesPath == "" {
		policiesPath = cfg.PolicyPath
	}
	if policiesPath == "" {
		fmt.Fprintln(os.Stderr, "--policies or HIVE_POLICY_PATH is required")
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	store, err := loadPolicies(policiesPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	keyer, err := workorder.NewKeyer(cfg.IdempotencySecret)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	caller, err := specialist.NewCaller(specialist.Options{
		Transports: map[string]specialist.Transport{"": &dryRunTransport{}},
		Prompts:    prompt.NewRegistry(),
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	eng, err := engine.New(engine.Options{
		Policies:     store,
		Keyer:        keyer,
		Caller:       caller,
		Logger:       logger,
		EnableLadder: ladder,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	orderBytes, err := os.ReadFile(orderPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	res := eng.ExecuteJSON(context.Background(), orderBytes)
	printJSON(res)
	if res.StopReason.Failure() {
		os.Exit(2)
	}
}

func cmdValidate(args []string) {
	var policiesPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--policies":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--policies requires a value")
				os.Exit(1)
			}
			policiesPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	if policiesPath == "" {
		usage()
		os.Exit(1)
	}

	store, err := loadPolicies(policiesPath, newLogger("info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ids := store.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Println(id)
	}
}

func cmdScore(args []string) {
	var resultPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--result":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--result requires a value")
				os.Exit(1)
			}
			resultPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	if resultPath == "" {
		usage()
		os.Exit(1)
	}

	b, err := os.ReadFile(resultPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var res struct {
		StopReason   run.StopReason `json:"stopReason"`
		Artifacts    []run.Artifact `json:"artifacts"`
		TotalCostUSD float64        `json:"totalCostUsd"`
		DurationMS   int64          `json:"durationMs"`
	}
	if err := json.Unmarshal(b, &res); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	report := score.ScoreRun(res.Artifacts, score.RunMeta{
		StopReason:   res.StopReason,
		TotalCostUSD: res.TotalCostUSD,
		DurationMS:   res.DurationMS,
	})
	printJSON(report)
}

func loadPolicies(path string, logger *slog.Logger) (*policy.Store, error) {
	f, err := policy.LoadFile(path)
	if err != nil {
		return nil, err
	}
	store, err := policy.NewStore(logger)
	if err != nil {
		return nil, err
	}
	if err := store.Register(f.Policies, true); err != nil {
		return nil, err
	}
	return store, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
