package evo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"efmtune/internal/model"
	"efmtune/internal/param"
	"efmtune/internal/storage"
	"efmtune/internal/testcase"
)

const (
	DefaultMultiplier = 15
	DefaultF          = 0.5
	DefaultCR         = 0.3

	// selectionOffset is added to every score when weighting base-vector
	// selection, so a zero-scoring candidate keeps a non-zero pick
	// probability.
	selectionOffset = 1000
)

// Evaluator turns one (params, testcase) pair into a stage counter
// mapping. pipeline.Runner is the production implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, params map[string]float64, tc testcase.Testcase) (model.Counters, error)
}

type Config struct {
	Space     param.Space
	Evaluator Evaluator
	Testcases []testcase.Testcase
	Store     storage.Store
	RunID     string

	// Multiplier scales the bounded-parameter count into the population
	// size. F is the differential weight, CR the crossover probability.
	Multiplier int
	F          float64
	CR         float64

	Workers int
	Seed    int64

	// Generations caps how many generations this Run call executes;
	// 0 means run until the context is cancelled.
	Generations int

	// ContinueOnError scores a failed trial as invalid instead of
	// aborting the whole search. The cause is reported through
	// OnEvaluationError.
	ContinueOnError   bool
	OnEvaluationError func(candidateID string, err error)
	OnGeneration      func(model.GenerationDiagnostics)
}

// RunSummary describes one Run call after it returns.
type RunSummary struct {
	RunID           string
	StartGeneration int
	EndGeneration   int
	PopulationSize  int
	BestScore       float64
	BestParams      map[string]float64
	Diagnostics     []model.GenerationDiagnostics
}

// Engine performs steady-state differential evolution over the parameter
// space. The population is owned by the coordinating goroutine; workers
// only ever evaluate and report back.
type Engine struct {
	cfg        Config
	rng        *rand.Rand
	bounded    []string
	population []model.Candidate
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Space.Validate(); err != nil {
		return nil, fmt.Errorf("parameter space: %w", err)
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if len(cfg.Testcases) == 0 {
		return nil, fmt.Errorf("at least one testcase is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.RunID == "" {
		cfg.RunID = "default"
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.F == 0 {
		cfg.F = DefaultF
	}
	if cfg.F < 0 {
		return nil, fmt.Errorf("differential weight must be positive, got %g", cfg.F)
	}
	if cfg.CR == 0 {
		cfg.CR = DefaultCR
	}
	if cfg.CR < 0 || cfg.CR > 1 {
		return nil, fmt.Errorf("crossover probability must be in [0, 1], got %g", cfg.CR)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	bounded := cfg.Space.BoundedNames()
	size := cfg.Multiplier * len(bounded)
	if size < 4 {
		return nil, fmt.Errorf("population size %d too small for differential evolution: need at least 4 (multiplier %d x %d bounded parameters)",
			size, cfg.Multiplier, len(bounded))
	}

	return &Engine{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		bounded: bounded,
	}, nil
}

// PopulationSize is fixed for the lifetime of the search.
func (e *Engine) PopulationSize() int {
	return e.cfg.Multiplier * len(e.bounded)
}

// Run resumes from the persisted leaderboard if one exists, fills the
// population to size, then iterates generations until the context is
// cancelled or the configured generation budget is exhausted. The
// population is persisted after every generation.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	start, err := e.restore(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	diagnostics, _, err := e.cfg.Store.GetRunDiagnostics(ctx, e.cfg.RunID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load run diagnostics: %w", err)
	}

	gen := start
	if len(e.population) < e.PopulationSize() {
		if err := e.initialFill(ctx, start); err != nil {
			return RunSummary{}, err
		}
		if err := e.persist(ctx); err != nil {
			return RunSummary{}, err
		}
		gen = start + 1
	}

	first := gen
	for {
		if err := ctx.Err(); err != nil {
			return e.summary(start, gen, diagnostics), nil
		}
		if e.cfg.Generations > 0 && gen >= first+e.cfg.Generations {
			return e.summary(start, gen, diagnostics), nil
		}

		replaced, err := e.generation(ctx, gen)
		if err != nil {
			if ctx.Err() != nil {
				return e.summary(start, gen, diagnostics), nil
			}
			return RunSummary{}, fmt.Errorf("generation %d: %w", gen, err)
		}

		if err := e.persist(ctx); err != nil {
			return RunSummary{}, fmt.Errorf("persist generation %d: %w", gen, err)
		}

		diag := e.diagnose(gen, replaced)
		diagnostics = append(diagnostics, diag)
		if err := e.cfg.Store.SaveRunDiagnostics(ctx, e.cfg.RunID, diagnostics); err != nil {
			return RunSummary{}, fmt.Errorf("save run diagnostics: %w", err)
		}
		if e.cfg.OnGeneration != nil {
			e.cfg.OnGeneration(diag)
		}
		gen++
	}
}

// restore reconstructs the population from the leaderboard. The next
// generation number is one past the highest persisted generation, so a
// resumed search never reprocesses the generation it crashed after.
func (e *Engine) restore(ctx context.Context) (int, error) {
	records, found, err := e.cfg.Store.LoadLeaderboard(ctx)
	if err != nil {
		return 0, fmt.Errorf("load leaderboard: %w", err)
	}
	if !found {
		e.population = make([]model.Candidate, 0, e.PopulationSize())
		return 0, nil
	}
	if len(records) > e.PopulationSize() {
		return 0, fmt.Errorf("leaderboard has %d records but the configured population size is %d",
			len(records), e.PopulationSize())
	}

	maxGeneration := 0
	e.population = make([]model.Candidate, 0, e.PopulationSize())
	for _, rec := range records {
		if !e.cfg.Space.InBounds(rec.Params) {
			return 0, fmt.Errorf("leaderboard record (generation %d) is outside the configured parameter bounds", rec.Generation)
		}
		e.population = append(e.population, model.Candidate{
			ID:         uuid.NewString(),
			Params:     param.CloneParams(rec.Params),
			Generation: rec.Generation,
			Target:     model.NoTarget,
			Score:      rec.Score,
		})
		if rec.Generation > maxGeneration {
			maxGeneration = rec.Generation
		}
	}
	return maxGeneration + 1, nil
}

// initialFill tops the population up with uniformly sampled candidates.
// This is the only point where candidates are admitted without a fitness
// comparison.
func (e *Engine) initialFill(ctx context.Context, generation int) error {
	missing := e.PopulationSize() - len(e.population)
	fresh := make([]*model.Candidate, 0, missing)
	for i := 0; i < missing; i++ {
		fresh = append(fresh, &model.Candidate{
			ID:         uuid.NewString(),
			Params:     e.cfg.Space.Sample(e.rng),
			Generation: generation,
			Target:     model.NoTarget,
		})
	}

	collect := e.dispatch(ctx, fresh)
	for _, cand := range fresh {
		if err := collect(cand); err != nil {
			return err
		}
		e.population = append(e.population, *cand)
	}
	return nil
}

// generation runs one full mutation/evaluation/selection cycle and
// returns how many slots were replaced.
func (e *Engine) generation(ctx context.Context, generation int) (int, error) {
	size := e.PopulationSize()
	trials := make([]*model.Candidate, size)
	for slot := 0; slot < size; slot++ {
		trial, err := e.buildTrial(ctx, slot, generation)
		if err != nil {
			return 0, err
		}
		trials[slot] = trial
	}

	// Every evaluation unit is submitted before any trial is joined,
	// maximizing overlap across the worker pool.
	collect := e.dispatch(ctx, trials)

	// Selection runs strictly in trial-submission order: a comparison may
	// observe a replacement made earlier in this same generation.
	replaced := 0
	for _, trial := range trials {
		if err := collect(trial); err != nil {
			return 0, err
		}
		if trial.Dominates(e.population[trial.Target]) {
			e.population[trial.Target] = *trial
			replaced++
		}
	}
	return replaced, nil
}

func (e *Engine) persist(ctx context.Context) error {
	records := make([]model.LeaderboardRecord, 0, len(e.population))
	for _, cand := range e.population {
		records = append(records, model.LeaderboardRecord{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			Score:      cand.Score,
			Generation: cand.Generation,
			Params:     cand.Params,
		})
	}
	if err := e.cfg.Store.SaveLeaderboard(ctx, records); err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	return nil
}

func (e *Engine) diagnose(generation, replaced int) model.GenerationDiagnostics {
	scores := make([]float64, len(e.population))
	best := math.Inf(-1)
	for i, cand := range e.population {
		scores[i] = cand.Score
		if cand.Score > best {
			best = cand.Score
		}
	}
	return model.GenerationDiagnostics{
		Generation:  generation,
		BestScore:   best,
		MeanScore:   stat.Mean(scores, nil),
		StddevScore: stat.StdDev(scores, nil),
		Replaced:    replaced,
	}
}

func (e *Engine) summary(start, end int, diagnostics []model.GenerationDiagnostics) RunSummary {
	best := model.Candidate{Score: math.Inf(-1)}
	for _, cand := range e.population {
		if cand.Score > best.Score {
			best = cand
		}
	}
	return RunSummary{
		RunID:           e.cfg.RunID,
		StartGeneration: start,
		EndGeneration:   end,
		PopulationSize:  len(e.population),
		BestScore:       best.Score,
		BestParams:      param.CloneParams(best.Params),
		Diagnostics:     diagnostics,
	}
}
