// Package jobresult defines the JobResult tree envelope the Grapher
// consumes from the results queue, along with the walk operations the
// encryption-retry loop and graph persistence both need.
package jobresult

import (
	"encoding/json"
	"fmt"

	"github.com/contextal/workgraph/internal/object"
)

// Symbols with a structural meaning to the core (the rest are opaque,
// worker-defined tags).
const (
	SymbolEncrypted = "ENCRYPTED"
	SymbolDecrypted = "DECRYPTED"
)

// OkResult is the successful-processing variant of a node's Result.
type OkResult struct {
	ObjectMetadata object.Metadata `json:"object_metadata"`
	Children       []JobResult     `json:"children"`
}

// ErrResult is the failed-processing variant of a node's Result.
type ErrResult struct {
	Message string `json:"message"`
}

// Result is the tagged union {"ok": OkResult} | {"error": ErrResult},
// externally tagged on the wire.
type Result struct {
	Ok  *OkResult  `json:"-"`
	Err *ErrResult `json:"-"`
}

// IsOk reports whether this Result is the ok variant.
func (r Result) IsOk() bool { return r.Ok != nil }

func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Ok != nil:
		return json.Marshal(map[string]*OkResult{"ok": r.Ok})
	case r.Err != nil:
		return json.Marshal(map[string]*ErrResult{"error": r.Err})
	default:
		return nil, fmt.Errorf("jobresult: result has neither ok nor error variant set")
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Ok  *OkResult  `json:"ok"`
		Err *ErrResult `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Ok == nil && raw.Err == nil {
		return fmt.Errorf("jobresult: result JSON has neither \"ok\" nor \"error\" key")
	}
	r.Ok = raw.Ok
	r.Err = raw.Err
	return nil
}

// JobResult is one node of the result tree published by a worker.
type JobResult struct {
	Info             object.Info     `json:"info"`
	Symbols          []string        `json:"symbols"`
	Result           Result          `json:"result"`
	RelationMetadata object.Metadata `json:"relation_metadata"`
}

// Descriptor is the object description published in a JobRequest, the
// input side of the pipeline (compare JobResult, the output side).
type Descriptor struct {
	Info             object.Info     `json:"info"`
	Symbols          []string        `json:"symbols"`
	RelationMetadata object.Metadata `json:"relation_metadata"`
	MaxRecursion     uint32          `json:"max_recursion"`
}

// HasSymbol reports whether this node carries the given symbol.
func (j JobResult) HasSymbol(sym string) bool {
	for _, s := range j.Symbols {
		if s == sym {
			return true
		}
	}
	return false
}

// Walk calls fn for this node and, recursively, every descendant held in
// an "ok" result's Children. Traversal stops early if fn returns false.
func (j JobResult) Walk(fn func(JobResult) bool) bool {
	if !fn(j) {
		return false
	}
	if j.Result.Ok == nil {
		return true
	}
	for _, child := range j.Result.Ok.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Depth returns the maximum nesting depth of this tree, counting the root
// node itself as depth 1. Used by the Grapher to reject envelopes deeper
// than MAX_WORK_DEPTH before any DB work is attempted.
func (j JobResult) Depth() int {
	if j.Result.Ok == nil || len(j.Result.Ok.Children) == 0 {
		return 1
	}
	max := 0
	for _, child := range j.Result.Ok.Children {
		if d := child.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// HasUndecryptedEncrypted reports whether any node in the tree carries the
// ENCRYPTED symbol without also carrying DECRYPTED.
func (j JobResult) HasUndecryptedEncrypted() bool {
	found := false
	j.Walk(func(n JobResult) bool {
		if n.HasSymbol(SymbolEncrypted) && !n.HasSymbol(SymbolDecrypted) {
			found = true
			return false
		}
		return true
	})
	return found
}

// HarvestPasswords collects every "possible password" candidate in the
// tree: the top-level relation_metadata._global.possible_passwords array,
// plus a string value under the key "password" in any node's
// relation_metadata or object_metadata. Order is root-first, depth-first;
// duplicates are not removed here (the caller merges and dedupes).
func (j JobResult) HarvestPasswords() []string {
	var out []string
	if global, ok := j.RelationMetadata[object.KeyGlobal].(map[string]any); ok {
		if list, ok := global[object.KeyPossiblePasswd].([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	j.Walk(func(n JobResult) bool {
		if pw, ok := n.RelationMetadata[object.KeyPassword].(string); ok {
			out = append(out, pw)
		}
		if n.Result.Ok != nil {
			if pw, ok := n.Result.Ok.ObjectMetadata[object.KeyPassword].(string); ok {
				out = append(out, pw)
			}
		}
		return true
	})
	return out
}

// IsReprocessable reports whether the top-level relation_metadata
// authorizes one encryption retry.
func (j JobResult) IsReprocessable() bool {
	v, _ := j.RelationMetadata[object.KeyReprocessable].(bool)
	return v
}

// DedupeStrings returns in, with duplicates removed, preserving first
// occurrence order.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
