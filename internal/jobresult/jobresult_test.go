package jobresult

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextal/workgraph/internal/object"
)

func entry(children ...JobResult) JobResult {
	return JobResult{
		Info:    object.Info{ObjectID: "aaaa", ObjectType: "ZIP"},
		Symbols: []string{},
		Result:  Result{Ok: &OkResult{Children: children}},
	}
}

func leaf(symbols ...string) JobResult {
	return JobResult{
		Info:    object.Info{ObjectID: "bbbb", ObjectType: "TEXT"},
		Symbols: symbols,
		Result:  Result{Ok: &OkResult{}},
	}
}

func TestResult_MarshalUnmarshalRoundTrip_Ok(t *testing.T) {
	r := Result{Ok: &OkResult{ObjectMetadata: object.Metadata{"k": "v"}}}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ok"`)

	var got Result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.IsOk())
	assert.Equal(t, "v", got.Ok.ObjectMetadata["k"])
}

func TestResult_MarshalUnmarshalRoundTrip_Err(t *testing.T) {
	r := Result{Err: &ErrResult{Message: "boom"}}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error"`)

	var got Result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.False(t, got.IsOk())
	assert.Equal(t, "boom", got.Err.Message)
}

func TestResult_MarshalNeitherVariant(t *testing.T) {
	_, err := json.Marshal(Result{})
	assert.Error(t, err)
}

func TestResult_UnmarshalNeitherKey(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{}`), &r)
	assert.Error(t, err)
}

func TestJobResult_Walk_VisitsEntireTree(t *testing.T) {
	root := entry(leaf(), leaf())

	var visited int
	root.Walk(func(JobResult) bool {
		visited++
		return true
	})

	assert.Equal(t, 3, visited)
}

func TestJobResult_Walk_StopsEarly(t *testing.T) {
	root := entry(leaf(), leaf())

	var visited int
	root.Walk(func(JobResult) bool {
		visited++
		return false
	})

	assert.Equal(t, 1, visited)
}

func TestJobResult_Depth(t *testing.T) {
	flat := leaf()
	assert.Equal(t, 1, flat.Depth())

	oneLevel := entry(leaf())
	assert.Equal(t, 2, oneLevel.Depth())

	nested := entry(entry(leaf()), leaf())
	assert.Equal(t, 3, nested.Depth())
}

func TestJobResult_HasUndecryptedEncrypted(t *testing.T) {
	withEncrypted := entry(leaf(SymbolEncrypted))
	assert.True(t, withEncrypted.HasUndecryptedEncrypted())

	decrypted := entry(leaf(SymbolEncrypted, SymbolDecrypted))
	assert.False(t, decrypted.HasUndecryptedEncrypted())

	clean := entry(leaf())
	assert.False(t, clean.HasUndecryptedEncrypted())
}

func TestJobResult_HarvestPasswords(t *testing.T) {
	root := entry(
		JobResult{
			Info:             object.Info{ObjectID: "cccc"},
			RelationMetadata: object.Metadata{object.KeyPassword: "from-relation"},
			Result:           Result{Ok: &OkResult{ObjectMetadata: object.Metadata{object.KeyPassword: "from-object"}}},
		},
	)
	root.RelationMetadata = object.Metadata{
		object.KeyGlobal: map[string]any{
			object.KeyPossiblePasswd: []any{"global-one", "global-two"},
		},
	}

	got := root.HarvestPasswords()
	assert.ElementsMatch(t, []string{"global-one", "global-two", "from-relation", "from-object"}, got)
}

func TestJobResult_IsReprocessable(t *testing.T) {
	yes := JobResult{RelationMetadata: object.Metadata{object.KeyReprocessable: true}}
	assert.True(t, yes.IsReprocessable())

	no := JobResult{RelationMetadata: object.Metadata{object.KeyReprocessable: false}}
	assert.False(t, no.IsReprocessable())

	missing := JobResult{}
	assert.False(t, missing.IsReprocessable())
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDedupeStrings_Empty(t *testing.T) {
	assert.Empty(t, DedupeStrings(nil))
}
