package evo

import (
	"context"

	"github.com/google/uuid"

	"efmtune/internal/model"
	"efmtune/internal/param"
)

// buildTrial derives one trial candidate for a population slot via the
// DE/rand-weighted mutation and crossover rule. A trial whose bounded
// parameters escape their bounds is discarded wholesale and rebuilt from
// fresh donors: rejection sampling preserves the donor-difference
// distribution where clamping would pile trials onto the boundary.
func (e *Engine) buildTrial(ctx context.Context, slot, generation int) (*model.Candidate, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base, r2, r3 := e.pickDonors(slot)
		params := param.CloneParams(e.population[slot].Params)
		for _, name := range e.bounded {
			if e.rng.Float64() < e.cfg.CR {
				params[name] = e.population[base].Params[name] +
					e.cfg.F*(e.population[r2].Params[name]-e.population[r3].Params[name])
			}
		}
		if !e.cfg.Space.InBounds(params) {
			continue
		}

		return &model.Candidate{
			ID:         uuid.NewString(),
			Params:     params,
			Generation: generation,
			Target:     slot,
		}, nil
	}
}

// pickDonors chooses the base vector by score-weighted sampling and two
// further donors uniformly, retrying until target and donors are pairwise
// distinct.
func (e *Engine) pickDonors(slot int) (base, r2, r3 int) {
	size := len(e.population)
	for {
		base = e.weightedPick()
		r2 = e.rng.Intn(size)
		r3 = e.rng.Intn(size)
		if pairwiseDistinct(slot, base, r2, r3) {
			return base, r2, r3
		}
	}
}

func (e *Engine) weightedPick() int {
	total := 0.0
	for _, cand := range e.population {
		total += cand.Score + selectionOffset
	}
	pick := e.rng.Float64() * total
	acc := 0.0
	for i, cand := range e.population {
		acc += cand.Score + selectionOffset
		if pick <= acc {
			return i
		}
	}
	return len(e.population) - 1
}

func pairwiseDistinct(indices ...int) bool {
	for i := 0; i < len(indices); i++ {
		for j := i + 1; j < len(indices); j++ {
			if indices[i] == indices[j] {
				return false
			}
		}
	}
	return true
}
