package rulesengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Scenario is one named graph predicate, loaded from a single JSON file in
// the scenarios directory. This is deliberately far simpler than a full
// grammar-based rule DSL: a node type plus a set of required symbols plus
// a minimum descendant count is enough to exercise the Director's
// apply/reload lifecycle and the graph-query surface it depends on,
// without attempting a full grammar or parser.
type Scenario struct {
	Name             string   `json:"name"`
	ObjectType       string   `json:"object_type"`
	RequiredSymbols  []string `json:"required_symbols"`
	MinDescendants   int      `json:"min_descendants"`
	MinEngineVersion string   `json:"min_engine_version"`
}

// EngineVersion is this minimal implementation's semantic version, checked
// against each scenario's declared minimum engine version.
const EngineVersion = "1.0.0"

// LoadScenarios reads every *.json file in dir and parses it as a
// Scenario. Files are read in lexical-filename order so the resulting
// slice (and therefore match-evaluation order) is deterministic.
func LoadScenarios(dir string) ([]Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("rulesengine: read scenarios dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]Scenario, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("rulesengine: read %s: %w", name, err)
		}
		var s Scenario
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("rulesengine: parse %s: %w", name, err)
		}
		if s.Name == "" {
			return nil, fmt.Errorf("rulesengine: %s: missing \"name\"", name)
		}
		if !engineSatisfies(s.MinEngineVersion) {
			return nil, fmt.Errorf("rulesengine: %s: requires engine >= %s, have %s", name, s.MinEngineVersion, EngineVersion)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// engineSatisfies reports whether EngineVersion meets min. An empty min
// always passes. Only major.minor.patch with no pre-release metadata is
// supported, which is all this repository's own scenario files ever use.
func engineSatisfies(min string) bool {
	if min == "" {
		return true
	}
	return compareSemver(EngineVersion, min) >= 0
}

func compareSemver(a, b string) int {
	pa, pb := parseSemver(a), parseSemver(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseSemver(v string) [3]int {
	var out [3]int
	var part, idx int
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == '.' {
			if idx < 3 {
				out[idx] = part
				idx++
			}
			part = 0
			continue
		}
		if v[i] >= '0' && v[i] <= '9' {
			part = part*10 + int(v[i]-'0')
		}
	}
	return out
}
