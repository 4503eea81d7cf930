package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"efmtune/internal/model"
	"efmtune/internal/storage"
	"efmtune/pkg/efmtune"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "leaderboard":
		return runLeaderboard(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "eval":
		return runEval(ctx, args[1:])
	case "filters":
		return runFilters(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: file|memory|sqlite")
	leaderboard := fs.String("leaderboard", "", "leaderboard path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := efmtune.New(efmtune.Options{StoreKind: *storeKind, LeaderboardPath: *leaderboard})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config YAML path")
	samplesDir := fs.String("samples-dir", "", "directory of .s16 sample captures")
	filterName := fs.String("filter", "", "equalizer variant (default bandgain)")
	encodePath := fs.String("encode", "", "encode collaborator executable")
	encodeArgsFlag := fs.String("encode-args", "", "extra encode arguments, space separated")
	decodePath := fs.String("decode", "", "decode collaborator executable")
	decodeArgsFlag := fs.String("decode-args", "", "extra decode arguments, space separated")
	scratchRoot := fs.String("scratch-root", "", "parent directory for per-evaluation scratch dirs")
	storeKind := fs.String("store", "", "store backend: file|memory|sqlite")
	leaderboard := fs.String("leaderboard", "", "leaderboard path")
	runID := fs.String("run-id", "", "run id for diagnostics (optional)")
	multiplier := fs.Int("multiplier", 0, "population size multiplier per bounded parameter")
	weightF := fs.Float64("f", 0, "differential weight")
	crossCR := fs.Float64("cr", 0, "crossover probability")
	workers := fs.Int("workers", 0, "evaluation worker count (0 = GOMAXPROCS)")
	seed := fs.Int64("seed", 0, "rng seed (0 = time-based)")
	generations := fs.Int("gens", 0, "generation count (0 = run until interrupted)")
	continueOnError := fs.Bool("continue-on-error", false, "score failed evaluations as invalid instead of aborting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var cfg runConfig
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	overrideFromFlags(&cfg, setFlags, map[string]any{
		"samples-dir":       *samplesDir,
		"filter":            *filterName,
		"encode":            *encodePath,
		"encode-args":       strings.Fields(*encodeArgsFlag),
		"decode":            *decodePath,
		"decode-args":       strings.Fields(*decodeArgsFlag),
		"scratch-root":      *scratchRoot,
		"store":             *storeKind,
		"leaderboard":       *leaderboard,
		"run-id":            *runID,
		"multiplier":        *multiplier,
		"f":                 *weightF,
		"cr":                *crossCR,
		"workers":           *workers,
		"seed":              *seed,
		"gens":              *generations,
		"continue-on-error": *continueOnError,
	})

	client, err := efmtune.New(cfg.clientOptions())
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := cfg.runRequest()
	req.OnEvaluationError = func(candidateID string, err error) {
		fmt.Fprintf(os.Stderr, "evaluation failed candidate=%s: %v\n", candidateID, err)
	}
	req.OnGeneration = func(d model.GenerationDiagnostics) {
		fmt.Printf("generation=%d best=%s mean=%.1f stddev=%.1f replaced=%d\n",
			d.Generation, humanize.CommafWithDigits(d.BestScore, 0), d.MeanScore, d.StddevScore, d.Replaced)
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s generations=[%d,%d) population=%d\n",
		summary.RunID, summary.StartGeneration, summary.EndGeneration, summary.PopulationSize)
	fmt.Printf("best_score=%s\n", humanize.CommafWithDigits(summary.BestScore, 0))
	fmt.Printf("best_params=%s\n", formatParams(summary.BestParams))
	return nil
}

func runLeaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	storeKind := fs.String("store", "", "store backend: file|memory|sqlite")
	leaderboard := fs.String("leaderboard", "", "leaderboard path")
	limit := fs.Int("limit", 10, "max entries to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit entries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := efmtune.New(efmtune.Options{StoreKind: *storeKind, LeaderboardPath: *leaderboard})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := efmtune.LeaderboardRequest{}
	if *limit > 0 {
		req.Limit = *limit
	}
	entries, err := client.Leaderboard(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Printf("rank=%d slot=%d score=%s generation=%s params=%s\n",
			e.Rank, e.Slot,
			humanize.CommafWithDigits(e.Score, 0),
			humanize.Comma(int64(e.Generation)),
			formatParams(e.Params))
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	storeKind := fs.String("store", "", "store backend: file|memory|sqlite")
	leaderboard := fs.String("leaderboard", "", "leaderboard path")
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := efmtune.New(efmtune.Options{StoreKind: *storeKind, LeaderboardPath: *leaderboard})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := efmtune.DiagnosticsRequest{RunID: *runID}
	if *limit > 0 {
		req.Limit = *limit
	}
	diagnostics, err := client.Diagnostics(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%s mean=%.1f stddev=%.1f replaced=%d\n",
			d.Generation, humanize.CommafWithDigits(d.BestScore, 0), d.MeanScore, d.StddevScore, d.Replaced)
	}
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config YAML path")
	samplesDir := fs.String("samples-dir", "", "directory of .s16 sample captures")
	filterName := fs.String("filter", "", "equalizer variant (default bandgain)")
	encodePath := fs.String("encode", "", "encode collaborator executable")
	encodeArgsFlag := fs.String("encode-args", "", "extra encode arguments, space separated")
	decodePath := fs.String("decode", "", "decode collaborator executable")
	decodeArgsFlag := fs.String("decode-args", "", "extra decode arguments, space separated")
	scratchRoot := fs.String("scratch-root", "", "parent directory for per-evaluation scratch dirs")
	overrides := make(map[string]float64)
	fs.Func("set", "parameter override name=value (repeatable)", func(s string) error {
		name, raw, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected name=value, got %q", s)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", s, err)
		}
		overrides[name] = value
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var cfg runConfig
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	overrideFromFlags(&cfg, setFlags, map[string]any{
		"samples-dir":  *samplesDir,
		"filter":       *filterName,
		"encode":       *encodePath,
		"encode-args":  strings.Fields(*encodeArgsFlag),
		"decode":       *decodePath,
		"decode-args":  strings.Fields(*decodeArgsFlag),
		"scratch-root": *scratchRoot,
	})

	client, err := efmtune.New(efmtune.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evaluate(ctx, efmtune.EvaluateRequest{
		SamplesDir:   cfg.SamplesDir,
		Filter:       cfg.Filter,
		Collaborator: cfg.collaborator(),
		Params:       overrides,
	})
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		fmt.Printf("testcase=%s score=%s syncs=%d symbols=%d frames=%d input=%d output=%d sections=%d\n",
			res.Source,
			humanize.CommafWithDigits(res.Score, 0),
			res.Counters.ValidSyncs,
			res.Counters.ValidSymbols,
			res.Counters.ValidFrames,
			res.Counters.InputFrames,
			res.Counters.OutputFrames,
			res.Counters.ValidSections)
	}
	fmt.Printf("total_score=%s params=%s\n",
		humanize.CommafWithDigits(summary.TotalScore, 0), formatParams(summary.Params))
	return nil
}

func runFilters(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("filters", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("filters takes no arguments")
	}

	client, err := efmtune.New(efmtune.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, name := range client.Filters() {
		fmt.Println(name)
	}
	return nil
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", name, strconv.FormatFloat(params[name], 'g', 6, 64))
	}
	return b.String()
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: efmtunectl <init|run|leaderboard|diagnostics|eval|filters> [flags]", msg)
}
