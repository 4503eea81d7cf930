package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"efmtune/pkg/efmtune"
)

// runConfig mirrors the run subcommand's flags so a search can be captured
// in one YAML file and replayed.
type runConfig struct {
	SamplesDir  string   `yaml:"samples_dir"`
	Filter      string   `yaml:"filter"`
	Encode      string   `yaml:"encode"`
	EncodeArgs  []string `yaml:"encode_args"`
	Decode      string   `yaml:"decode"`
	DecodeArgs  []string `yaml:"decode_args"`
	ScratchRoot string   `yaml:"scratch_root"`

	Store       string `yaml:"store"`
	Leaderboard string `yaml:"leaderboard"`

	RunID           string  `yaml:"run_id"`
	Multiplier      int     `yaml:"multiplier"`
	F               float64 `yaml:"differential_weight"`
	CR              float64 `yaml:"crossover_probability"`
	Workers         int     `yaml:"workers"`
	Seed            int64   `yaml:"seed"`
	Generations     int     `yaml:"generations"`
	ContinueOnError bool    `yaml:"continue_on_error"`
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, fmt.Errorf("load config: %w", err)
	}
	var cfg runConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return runConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// overrideFromFlags applies only the flags the user set explicitly on top
// of a loaded config file.
func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "samples-dir":
			cfg.SamplesDir = v.(string)
		case "filter":
			cfg.Filter = v.(string)
		case "encode":
			cfg.Encode = v.(string)
		case "encode-args":
			cfg.EncodeArgs = v.([]string)
		case "decode":
			cfg.Decode = v.(string)
		case "decode-args":
			cfg.DecodeArgs = v.([]string)
		case "scratch-root":
			cfg.ScratchRoot = v.(string)
		case "store":
			cfg.Store = v.(string)
		case "leaderboard":
			cfg.Leaderboard = v.(string)
		case "run-id":
			cfg.RunID = v.(string)
		case "multiplier":
			cfg.Multiplier = v.(int)
		case "f":
			cfg.F = v.(float64)
		case "cr":
			cfg.CR = v.(float64)
		case "workers":
			cfg.Workers = v.(int)
		case "seed":
			cfg.Seed = v.(int64)
		case "gens":
			cfg.Generations = v.(int)
		case "continue-on-error":
			cfg.ContinueOnError = v.(bool)
		}
	}
}

func (c runConfig) clientOptions() efmtune.Options {
	return efmtune.Options{
		StoreKind:       c.Store,
		LeaderboardPath: c.Leaderboard,
	}
}

func (c runConfig) collaborator() efmtune.CollaboratorConfig {
	return efmtune.CollaboratorConfig{
		EncodePath:  c.Encode,
		EncodeArgs:  c.EncodeArgs,
		DecodePath:  c.Decode,
		DecodeArgs:  c.DecodeArgs,
		ScratchRoot: c.ScratchRoot,
	}
}

func (c runConfig) runRequest() efmtune.RunRequest {
	return efmtune.RunRequest{
		SamplesDir:      c.SamplesDir,
		Filter:          c.Filter,
		Collaborator:    c.collaborator(),
		RunID:           c.RunID,
		Multiplier:      c.Multiplier,
		F:               c.F,
		CR:              c.CR,
		Workers:         c.Workers,
		Seed:            c.Seed,
		Generations:     c.Generations,
		ContinueOnError: c.ContinueOnError,
	}
}
