package grapher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextal/workgraph/internal/jobresult"
	"github.com/contextal/workgraph/internal/object"
)

func reprocessableWork(globalPasswords []any, encrypted, decrypted bool) jobresult.JobResult {
	child := jobresult.JobResult{
		Info:    object.Info{ObjectID: "child"},
		Result:  jobresult.Result{Ok: &jobresult.OkResult{}},
		Symbols: []string{},
	}
	if encrypted {
		child.Symbols = append(child.Symbols, jobresult.SymbolEncrypted)
	}
	if decrypted {
		child.Symbols = append(child.Symbols, jobresult.SymbolDecrypted)
	}

	return jobresult.JobResult{
		Info:   object.Info{ObjectID: "entry"},
		Result: jobresult.Result{Ok: &jobresult.OkResult{Children: []jobresult.JobResult{child}}},
		RelationMetadata: object.Metadata{
			object.KeyReprocessable: true,
			object.KeyGlobal: map[string]any{
				object.KeyPossiblePasswd: globalPasswords,
			},
		},
	}
}

func TestShouldReprocess_AllConditionsMet(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, false)

	retry, passwords := shouldReprocess(work)

	assert.True(t, retry)
	assert.Equal(t, []string{"hunter2"}, passwords)
}

func TestShouldReprocess_NotReprocessable(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, false)
	work.RelationMetadata[object.KeyReprocessable] = false

	retry, _ := shouldReprocess(work)
	assert.False(t, retry)
}

func TestShouldReprocess_AlreadyDecrypted(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, true)

	retry, _ := shouldReprocess(work)
	assert.False(t, retry)
}

func TestShouldReprocess_NoPasswordCandidates(t *testing.T) {
	work := reprocessableWork(nil, true, false)

	retry, _ := shouldReprocess(work)
	assert.False(t, retry)
}

func TestShouldReprocess_NoEncryptedNode(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, false, false)

	retry, _ := shouldReprocess(work)
	assert.False(t, retry)
}

func TestBuildRetryDescriptor_FlipsReprocessableAndMergesPasswords(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, false)

	descriptor := buildRetryDescriptor(work, []string{"hunter2", "extra"}, reprocessLimits{MaxRecursion: 10, MaxTTLSec: 600})

	assert.Equal(t, false, descriptor.RelationMetadata[object.KeyReprocessable])
	global := descriptor.RelationMetadata[object.KeyGlobal].(map[string]any)
	assert.Equal(t, []any{"hunter2", "extra"}, global[object.KeyPossiblePasswd])
	assert.Equal(t, "entry", descriptor.Info.ObjectID)
	assert.Empty(t, descriptor.Symbols)
	assert.Equal(t, uint32(10), descriptor.MaxRecursion)
}

func TestBuildRetryDescriptor_ClampsOriginMaxRecursionAndTTL(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, false)
	work.RelationMetadata[object.KeyOrigin] = map[string]any{
		"max_recursion": float64(5),
		"ttl":           float64(10000),
	}

	descriptor := buildRetryDescriptor(work, []string{"hunter2"}, reprocessLimits{MaxRecursion: 50, MaxTTLSec: 900})

	origin := descriptor.RelationMetadata[object.KeyOrigin].(map[string]any)
	assert.Equal(t, uint32(5), origin["max_recursion"])
	assert.Equal(t, int64(900), origin["ttl"])
	assert.Equal(t, uint32(5), descriptor.MaxRecursion)
}

func TestBuildRetryDescriptor_DoesNotMutateOriginalWork(t *testing.T) {
	work := reprocessableWork([]any{"hunter2"}, true, false)

	buildRetryDescriptor(work, []string{"hunter2", "extra"}, reprocessLimits{MaxRecursion: 10, MaxTTLSec: 600})

	global := work.RelationMetadata[object.KeyGlobal].(map[string]any)
	assert.Equal(t, []any{"hunter2"}, global[object.KeyPossiblePasswd])
	assert.Equal(t, true, work.RelationMetadata[object.KeyReprocessable])
}
