package model

import "testing"

func TestCountersScoreWeighting(t *testing.T) {
	c := Counters{
		ValidSyncs:    100,
		ValidSymbols:  99,
		InputFrames:   90,
		ValidFrames:   90,
		OutputFrames:  88,
		ValidSections: 80,
	}
	if got := c.Score(); got != 258289 {
		t.Fatalf("score = %g, want 258289", got)
	}
}

func TestCountersScoreMonotonic(t *testing.T) {
	base := Counters{ValidSyncs: 5, ValidFrames: 2}
	bumped := base
	bumped.ValidSymbols++
	if bumped.Score() <= base.Score() {
		t.Fatal("score must be monotonically non-decreasing in any counter")
	}
	bumped = base
	bumped.ValidSections++
	if bumped.Score()-base.Score() != 1000 {
		t.Fatalf("frame-level counter weight = %g, want 1000", bumped.Score()-base.Score())
	}
	if (Counters{}).Score() != 0 {
		t.Fatal("zero counters must score zero")
	}
}

func TestDominatesIsStrict(t *testing.T) {
	a := Candidate{Score: 10}
	b := Candidate{Score: 10}
	if a.Dominates(b) || b.Dominates(a) {
		t.Fatal("equal scores must not dominate")
	}
	b.Score = 9
	if !a.Dominates(b) {
		t.Fatal("a strictly higher score must dominate")
	}
}
