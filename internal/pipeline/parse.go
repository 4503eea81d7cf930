package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"efmtune/internal/model"
)

type statKey struct {
	section string
	name    string
}

// The six counters the decode collaborator must report, keyed by normalized
// section header and counter name. Extracting fewer than all six fails the
// evaluation, which guards against silent diagnostic-format drift.
var statSetters = map[statKey]func(*model.Counters, int){
	{"efm to f3 frames", "valid syncs"}:		func(c *model.Counters, v int) { c.ValidSyncs = v },
	{"efm to f3 frames", "valid symbols"}:		func(c *model.Counters, v int) { c.ValidSymbols = v },
	{"efm to f3 frames", "valid frames"}:		func(c *model.Counters, v int) { c.ValidFrames = v },
	{"f3 to f2 frames", "input frames"}:		func(c *model.Counters, v int) { c.InputFrames = v },
	{"f3 to f2 frames", "output frames"}:		func(c *model.Counters, v int) { c.OutputFrames = v },
	{"f2 frames to sections", "valid sections"}:	func(c *model.Counters, v int) { c.ValidSections = v },
}

// ParseStats extracts the six stage counters from the decode collaborator's
// diagnostic output. The format is a section header line ending in ':'
// followed by 'name: integer' lines; anything else is ignored.
func ParseStats(diag []byte) (model.Counters, error) {
	var counters model.Counters
	seen := make(map[statKey]struct{}, len(statSetters))
	section := ""

	scanner := bufio.NewScanner(bytes.NewReader(diag))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			section = normalizeStat(strings.TrimSuffix(line, ":"))
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		key := statKey{section: section, name: normalizeStat(name)}
		setter, ok := statSetters[key]
		if !ok {
			continue
		}
		setter(&counters, count)
		seen[key] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return model.Counters{}, fmt.Errorf("scan decode statistics: %w", err)
	}

	if len(seen) != len(statSetters) {
		return model.Counters{}, fmt.Errorf("decode statistics incomplete: found %d of %d counters (missing: %s)",
			len(seen), len(statSetters), missingStats(seen))
	}
	return counters, nil
}

func normalizeStat(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func missingStats(seen map[statKey]struct{}) string {
	missing := make([]string, 0, len(statSetters))
	for key := range statSetters {
		if _, ok := seen[key]; !ok {
			missing = append(missing, key.section+"/"+key.name)
		}
	}
	sort.Strings(missing)
	return strings.Join(missing, ", ")
}
