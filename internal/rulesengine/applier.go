package rulesengine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/graph"
)

// GraphDB is the narrow slice of *graph.DB the applier needs, kept as an
// interface so tests can supply a fake without a live Postgres connection.
type GraphDB interface {
	ObjectsForWork(ctx context.Context, workID string) ([]graph.ObjectRow, error)
	DescendantCount(ctx context.Context, objectRowID int64) (int, error)
	RecordScenarioMatch(ctx context.Context, workID, scenario string, objectRowID int64) error
}

// GraphApplier is the concrete, minimal ScenarioApplier: it loads
// scenarios from a directory of JSON files and evaluates each against a
// work's already-committed subgraph.
type GraphApplier struct {
	db           GraphDB
	scenariosDir string
	log          *zap.Logger

	mu        sync.RWMutex
	scenarios []Scenario
}

// NewGraphApplier returns a GraphApplier with no scenarios loaded yet;
// call ReloadScenarios once before the first Apply (cmd/director does this
// at startup, then again on every debounced reload).
func NewGraphApplier(db GraphDB, scenariosDir string, log *zap.Logger) *GraphApplier {
	return &GraphApplier{db: db, scenariosDir: scenariosDir, log: log}
}

// ReloadScenarios re-reads every scenario file from disk and swaps them in
// atomically. A read error leaves the previously loaded scenario set in
// place — a transient authoring-directory glitch should not blank out
// rule evaluation entirely.
func (a *GraphApplier) ReloadScenarios(_ context.Context) error {
	loaded, err := LoadScenarios(a.scenariosDir)
	if err != nil {
		return fmt.Errorf("rulesengine: reload: %w", err)
	}
	a.mu.Lock()
	a.scenarios = loaded
	a.mu.Unlock()
	a.log.Info("scenarios reloaded", zap.Int("count", len(loaded)))
	return nil
}

// Apply evaluates every loaded scenario against workID's subgraph. For
// each object row whose type and symbol set match a scenario's
// requirements and whose descendant count meets the minimum, a
// scenario_matches row is recorded, idempotently.
func (a *GraphApplier) Apply(ctx context.Context, workID string) error {
	a.mu.RLock()
	scenarios := a.scenarios
	a.mu.RUnlock()

	if len(scenarios) == 0 {
		return nil
	}

	objects, err := a.db.ObjectsForWork(ctx, workID)
	if err != nil {
		return fmt.Errorf("rulesengine: apply %s: %w", workID, err)
	}

	for _, obj := range objects {
		for _, scenario := range scenarios {
			if !matches(obj, scenario) {
				continue
			}
			count, err := a.db.DescendantCount(ctx, obj.ID)
			if err != nil {
				return fmt.Errorf("rulesengine: apply %s: %w", workID, err)
			}
			if count < scenario.MinDescendants {
				continue
			}
			if err := a.db.RecordScenarioMatch(ctx, workID, scenario.Name, obj.ID); err != nil {
				return fmt.Errorf("rulesengine: apply %s: %w", workID, err)
			}
		}
	}
	return nil
}

func matches(obj graph.ObjectRow, s Scenario) bool {
	if s.ObjectType != "" && obj.ObjectType != s.ObjectType {
		return false
	}
	for _, required := range s.RequiredSymbols {
		if !hasSymbol(obj.Result.Symbols, required) {
			return false
		}
	}
	return true
}

func hasSymbol(symbols []string, want string) bool {
	for _, s := range symbols {
		if s == want {
			return true
		}
	}
	return false
}
