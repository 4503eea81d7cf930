package efmtune

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"efmtune/internal/evo"
	"efmtune/internal/filter"
	"efmtune/internal/model"
	"efmtune/internal/param"
	"efmtune/internal/pipeline"
	"efmtune/internal/storage"
	"efmtune/internal/testcase"
)

const defaultLeaderboardPath = "efmtune.leaderboard"

type Options struct {
	StoreKind       string
	LeaderboardPath string
}

// Client is the embedding surface for the tuner. One client owns one
// leaderboard store; concurrent Run calls against the same store are not
// supported.
type Client struct {
	store storage.Store
	space param.Space
}

type CollaboratorConfig struct {
	EncodePath  string
	EncodeArgs  []string
	DecodePath  string
	DecodeArgs  []string
	ScratchRoot string
}

type RunRequest struct {
	SamplesDir   string
	Filter       string
	Collaborator CollaboratorConfig

	RunID           string
	Multiplier      int
	F               float64
	CR              float64
	Workers         int
	Seed            int64
	Generations     int
	ContinueOnError bool

	OnEvaluationError func(candidateID string, err error)
	OnGeneration      func(model.GenerationDiagnostics)
}

type RunSummary struct {
	RunID           string
	StartGeneration int
	EndGeneration   int
	PopulationSize  int
	BestScore       float64
	BestParams      map[string]float64
	Diagnostics     []model.GenerationDiagnostics
}

type LeaderboardRequest struct {
	Limit int
}

// LeaderboardEntry is one leaderboard record plus its persisted slot. Slot
// is the record's stable identity across generations; Rank orders entries
// by descending score for display.
type LeaderboardEntry struct {
	Rank       int
	Slot       int
	Score      float64
	Generation int
	Params     map[string]float64
}

type DiagnosticsRequest struct {
	RunID string
	Limit int
}

type EvaluateRequest struct {
	SamplesDir   string
	Filter       string
	Collaborator CollaboratorConfig

	// Params overrides individual parameter-space defaults. Unknown names
	// are rejected.
	Params map[string]float64
}

type EvaluateResult struct {
	Source   string
	Counters model.Counters
	Score    float64
}

type EvaluateSummary struct {
	Params     map[string]float64
	Results    []EvaluateResult
	TotalScore float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	path := opts.LeaderboardPath
	if path == "" {
		path = defaultLeaderboardPath
	}

	store, err := storage.NewStore(storeKind, path)
	if err != nil {
		return nil, err
	}

	return &Client{
		store: store,
		space: param.DefaultSpace(),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Space exposes the parameter space the client tunes over.
func (c *Client) Space() param.Space {
	return c.space
}

// Filters lists the registered equalizer variants.
func (c *Client) Filters() []string {
	return filter.Names()
}

// Run resumes or starts a search against the client's leaderboard store.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	runner, testcases, err := c.buildPipeline(req.SamplesDir, req.Filter, req.Collaborator)
	if err != nil {
		return RunSummary{}, err
	}

	if err := c.store.Init(ctx); err != nil {
		return RunSummary{}, fmt.Errorf("init store: %w", err)
	}

	engine, err := evo.NewEngine(evo.Config{
		Space:             c.space,
		Evaluator:         runner,
		Testcases:         testcases,
		Store:             c.store,
		RunID:             req.RunID,
		Multiplier:        req.Multiplier,
		F:                 req.F,
		CR:                req.CR,
		Workers:           req.Workers,
		Seed:              req.Seed,
		Generations:       req.Generations,
		ContinueOnError:   req.ContinueOnError,
		OnEvaluationError: req.OnEvaluationError,
		OnGeneration:      req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	sum, err := engine.Run(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:           sum.RunID,
		StartGeneration: sum.StartGeneration,
		EndGeneration:   sum.EndGeneration,
		PopulationSize:  sum.PopulationSize,
		BestScore:       sum.BestScore,
		BestParams:      sum.BestParams,
		Diagnostics:     sum.Diagnostics,
	}, nil
}

// Leaderboard returns the persisted population sorted by descending score.
// Ties keep slot order, so output is stable across reloads.
func (c *Client) Leaderboard(ctx context.Context, req LeaderboardRequest) ([]LeaderboardEntry, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	records, found, err := c.store.LoadLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("no leaderboard yet: run a search first")
	}

	entries := make([]LeaderboardEntry, 0, len(records))
	for slot, rec := range records {
		entries = append(entries, LeaderboardEntry{
			Slot:       slot,
			Score:      rec.Score,
			Generation: rec.Generation,
			Params:     param.CloneParams(rec.Params),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID := req.RunID
	if runID == "" {
		runID = "default"
	}

	diagnostics, found, err := c.store.GetRunDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no diagnostics recorded for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[len(diagnostics)-req.Limit:]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

// Evaluate scores a single parameter set through the full pipeline without
// touching the leaderboard. With no overrides it scores the space defaults,
// which is the untuned baseline.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	runner, testcases, err := c.buildPipeline(req.SamplesDir, req.Filter, req.Collaborator)
	if err != nil {
		return EvaluateSummary{}, err
	}

	params := param.CloneParams(c.space.Defaults)
	for name, value := range req.Params {
		if _, ok := params[name]; !ok {
			return EvaluateSummary{}, fmt.Errorf("unknown parameter: %s", name)
		}
		params[name] = value
	}
	if !c.space.InBounds(params) {
		return EvaluateSummary{}, errors.New("parameter overrides are outside the configured bounds")
	}

	summary := EvaluateSummary{Params: params}
	for _, tc := range testcases {
		counters, err := runner.Evaluate(ctx, params, tc)
		if err != nil {
			return EvaluateSummary{}, fmt.Errorf("evaluate %s: %w", tc.Source, err)
		}
		score := counters.Score()
		summary.Results = append(summary.Results, EvaluateResult{
			Source:   tc.Source,
			Counters: counters,
			Score:    score,
		})
		summary.TotalScore += score
	}
	return summary, nil
}

func (c *Client) buildPipeline(samplesDir, filterName string, collab CollaboratorConfig) (*pipeline.Runner, []testcase.Testcase, error) {
	if samplesDir == "" {
		return nil, nil, errors.New("samples directory is required")
	}

	f, err := filter.New(filterName)
	if err != nil {
		return nil, nil, err
	}
	testcases, err := testcase.LoadDir(samplesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load samples: %w", err)
	}

	runner := &pipeline.Runner{
		Filter:      f,
		EncodePath:  collab.EncodePath,
		EncodeArgs:  collab.EncodeArgs,
		DecodePath:  collab.DecodePath,
		DecodeArgs:  collab.DecodeArgs,
		ScratchRoot: collab.ScratchRoot,
	}
	if err := runner.Validate(); err != nil {
		return nil, nil, err
	}
	return runner, testcases, nil
}
