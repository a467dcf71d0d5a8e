package grapher

import (
	"github.com/contextal/workgraph/internal/jobresult"
	"github.com/contextal/workgraph/internal/object"
)

// reprocessLimits carries the system maxima the encryption-retry loop
// clamps _origin.max_recursion and _origin.ttl against.
type reprocessLimits struct {
	MaxRecursion uint32
	MaxTTLSec    int64
}

// shouldReprocess implements the three-part retry test: reprocessable
// flag set, at least one undecrypted ENCRYPTED node, and at least one
// harvested password candidate. It returns the deduplicated password list
// to publish when reprocessing is indicated.
func shouldReprocess(work jobresult.JobResult) (bool, []string) {
	if !work.IsReprocessable() {
		return false, nil
	}
	if !work.HasUndecryptedEncrypted() {
		return false, nil
	}
	passwords := jobresult.DedupeStrings(work.HarvestPasswords())
	if len(passwords) == 0 {
		return false, nil
	}
	return true, passwords
}

// buildRetryDescriptor assembles the new JobRequest descriptor for the
// encryption-retry republish: same info, empty symbols, and a mutated
// relation_metadata with _reprocessable flipped to false and
// _global.possible_passwords merged with the freshly harvested
// candidates, preserving (and clamping) _origin.max_recursion/_origin.ttl.
func buildRetryDescriptor(work jobresult.JobResult, passwords []string, limits reprocessLimits) jobresult.Descriptor {
	relMeta := cloneMetadata(work.RelationMetadata)
	relMeta[object.KeyReprocessable] = false

	global, _ := relMeta[object.KeyGlobal].(map[string]any)
	if global == nil {
		global = map[string]any{}
	} else {
		global = cloneMetadata(global)
	}
	passList := make([]any, len(passwords))
	for i, p := range passwords {
		passList[i] = p
	}
	global[object.KeyPossiblePasswd] = passList
	relMeta[object.KeyGlobal] = global

	maxRecursion := limits.MaxRecursion
	if origin, ok := relMeta[object.KeyOrigin].(map[string]any); ok {
		origin = cloneMetadata(origin)
		if v, ok := origin["max_recursion"].(float64); ok && uint32(v) < limits.MaxRecursion {
			maxRecursion = uint32(v)
		}
		if v, ok := origin["ttl"].(float64); ok {
			ttl := int64(v)
			if ttl > limits.MaxTTLSec {
				ttl = limits.MaxTTLSec
			}
			origin["ttl"] = ttl
		}
		origin["max_recursion"] = maxRecursion
		relMeta[object.KeyOrigin] = origin
	}

	return jobresult.Descriptor{
		Info:             work.Info,
		Symbols:          []string{},
		RelationMetadata: relMeta,
		MaxRecursion:     maxRecursion,
	}
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
