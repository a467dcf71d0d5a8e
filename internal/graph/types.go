package graph

import "github.com/contextal/workgraph/internal/object"

// StoredOk is the "ok" branch of StoredResult, the shape object_metadata
// takes inside a persisted objects.result column — note Children is
// deliberately absent: children are persisted as their own rows linked
// through rels, never duplicated inside the parent's JSON.
type StoredOk struct {
	ObjectMetadata object.Metadata `json:"object_metadata"`
}

// StoredErr mirrors jobresult.ErrResult.
type StoredErr struct {
	Message string `json:"message"`
}

// StoredResult is the JSON shape written to objects.result. It folds the
// JobResult node's top-level Symbols in alongside the ok/error tagged
// union, since the schema has no separate symbols column and the rules
// engine (internal/rulesengine) needs symbols to evaluate scenario
// predicates against already-committed rows.
type StoredResult struct {
	Symbols []string   `json:"symbols"`
	Ok      *StoredOk  `json:"ok,omitempty"`
	Err     *StoredErr `json:"error,omitempty"`
}
