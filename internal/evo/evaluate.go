package evo

import (
	"context"
	"fmt"

	"efmtune/internal/model"
	"efmtune/internal/testcase"
)

// invalidScore marks a trial whose evaluation failed when the engine is
// configured to continue. It is below any reachable score, so such a trial
// can never displace a population member.
const invalidScore = -1

type evalUnit struct {
	cand *model.Candidate
	tc   testcase.Testcase
	out  chan evalResult
}

type evalResult struct {
	source   string
	counters model.Counters
	err      error
}

// dispatch submits every (candidate, testcase) evaluation unit to a bounded
// worker pool before returning, then hands back a collector that joins one
// candidate's full result set at a time. The collector must be called
// exactly once per candidate, from the coordinating goroutine; it is the
// only writer of a candidate's results and score.
func (e *Engine) dispatch(parent context.Context, candidates []*model.Candidate) func(*model.Candidate) error {
	ctx, cancel := context.WithCancel(parent)

	unitCount := len(candidates) * len(e.cfg.Testcases)
	jobs := make(chan evalUnit, unitCount)
	results := make(map[*model.Candidate]chan evalResult, len(candidates))
	for _, cand := range candidates {
		out := make(chan evalResult, len(e.cfg.Testcases))
		results[cand] = out
		for _, tc := range e.cfg.Testcases {
			jobs <- evalUnit{cand: cand, tc: tc, out: out}
		}
	}
	close(jobs)

	workers := e.cfg.Workers
	if workers > unitCount {
		workers = unitCount
	}
	for w := 0; w < workers; w++ {
		go func() {
			for unit := range jobs {
				if err := ctx.Err(); err != nil {
					unit.out <- evalResult{source: unit.tc.Source, err: err}
					continue
				}
				counters, err := e.cfg.Evaluator.Evaluate(ctx, unit.cand.Params, unit.tc)
				unit.out <- evalResult{source: unit.tc.Source, counters: counters, err: err}
			}
		}()
	}

	remaining := len(candidates)
	return func(cand *model.Candidate) error {
		out := results[cand]
		cand.Results = make(map[string]model.Counters, len(e.cfg.Testcases))
		var firstErr error
		for i := 0; i < len(e.cfg.Testcases); i++ {
			res := <-out
			if res.err != nil {
				if firstErr == nil {
					firstErr = res.err
				}
				continue
			}
			cand.Results[res.source] = res.counters
		}

		remaining--
		if remaining == 0 {
			cancel()
		}

		if firstErr != nil {
			if e.cfg.ContinueOnError && parent.Err() == nil {
				if e.cfg.OnEvaluationError != nil {
					e.cfg.OnEvaluationError(cand.ID, firstErr)
				}
				cand.Results = nil
				cand.Score = invalidScore
				return nil
			}
			cancel()
			return fmt.Errorf("evaluate candidate %s: %w", cand.ID, firstErr)
		}

		cand.Score = scoreResults(cand.Results)
		return nil
	}
}

// scoreResults sums the weighted counter scores over all testcases. The
// sum is order-independent and unnormalized, which is why all testcases
// must share one sample length.
func scoreResults(results map[string]model.Counters) float64 {
	total := 0.0
	for _, counters := range results {
		total += counters.Score()
	}
	return total
}
