package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NoTarget marks a candidate that does not compete for a population slot.
const NoTarget = -1

// Counters holds the six per-stage success counts reported by the decode
// collaborator for one testcase. The three frame-level counters represent a
// fully decoded unit at their stage and dominate the score.
type Counters struct {
	ValidSyncs    int `json:"valid_syncs"`
	ValidSymbols  int `json:"valid_symbols"`
	ValidFrames   int `json:"valid_frames"`
	InputFrames   int `json:"input_frames"`
	OutputFrames  int `json:"output_frames"`
	ValidSections int `json:"valid_sections"`
}

const frameLevelWeight = 1000

// Score computes the weighted fitness contribution of one counter set.
// Partial progress counts; complete decodes count three orders of
// magnitude more.
func (c Counters) Score() float64 {
	partial := c.ValidSyncs + c.ValidSymbols + c.InputFrames
	full := c.ValidFrames + c.OutputFrames + c.ValidSections
	return float64(partial) + frameLevelWeight*float64(full)
}

// Candidate is one point in parameter space plus its evaluation bookkeeping.
// Results is filled only by the goroutine collecting the candidate's own
// evaluation futures; Score is undefined until every testcase result is in.
type Candidate struct {
	ID         string
	Params     map[string]float64
	Generation int
	Target     int
	Results    map[string]Counters
	Score      float64
}

// Dominates reports whether the candidate's score strictly beats other's.
// Equal scores never dominate, so an incumbent survives ties.
func (c Candidate) Dominates(other Candidate) bool {
	return c.Score > other.Score
}

// LeaderboardRecord is the durable representation of one population member.
type LeaderboardRecord struct {
	VersionedRecord
	Score      float64            `json:"score"`
	Generation int                `json:"generation"`
	Params     map[string]float64 `json:"params"`
}

// GenerationDiagnostics summarises one generation for run history.
type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestScore   float64 `json:"best_score"`
	MeanScore   float64 `json:"mean_score"`
	StddevScore float64 `json:"stddev_score"`
	Replaced    int     `json:"replaced"`
}
