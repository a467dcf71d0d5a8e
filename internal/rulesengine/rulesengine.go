// Package rulesengine defines the Go-facing contract for the rules engine,
// the Director's only collaborator, and ships one concrete, minimal
// implementation. A full grammar/parser for scenario authoring is out of
// scope; this package exists so the Director has something real to call,
// guaranteeing that applying scenarios twice for the same work_id inserts
// no duplicate scenario_matches rows.
package rulesengine

import "context"

// ScenarioApplier is invoked by the Director once per committed work
// (apply) and on every debounced reload tick (ReloadScenarios).
type ScenarioApplier interface {
	// Apply evaluates every loaded scenario against workID's subgraph and
	// records matches. Idempotent: re-applying for the same workID must
	// not create duplicate records.
	Apply(ctx context.Context, workID string) error

	// ReloadScenarios refreshes the in-memory scenario set from its
	// authoring source. Concurrent reloads are idempotent.
	ReloadScenarios(ctx context.Context) error
}
