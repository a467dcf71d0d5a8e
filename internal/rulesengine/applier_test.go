package rulesengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/graph"
)

type fakeGraphDB struct {
	objects         []graph.ObjectRow
	descendants     map[int64]int
	recordedMatches []string
}

func (f *fakeGraphDB) ObjectsForWork(context.Context, string) ([]graph.ObjectRow, error) {
	return f.objects, nil
}

func (f *fakeGraphDB) DescendantCount(_ context.Context, id int64) (int, error) {
	return f.descendants[id], nil
}

func (f *fakeGraphDB) RecordScenarioMatch(_ context.Context, workID, scenario string, objectRowID int64) error {
	f.recordedMatches = append(f.recordedMatches, scenario)
	return nil
}

func newScenarioDir(t *testing.T, scenarios ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i, s := range scenarios {
		name := filepath.Join(dir, string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(name, []byte(s), 0o644))
	}
	return dir
}

func TestGraphApplier_Apply_RecordsMatchingScenario(t *testing.T) {
	dir := newScenarioDir(t, `{"name":"archive-with-many-children","object_type":"ZIP","required_symbols":["ZIP_OK"],"min_descendants":2}`)
	db := &fakeGraphDB{
		objects: []graph.ObjectRow{
			{ID: 1, ObjectType: "ZIP", Result: graph.StoredResult{Symbols: []string{"ZIP_OK"}}},
		},
		descendants: map[int64]int{1: 3},
	}
	applier := NewGraphApplier(db, dir, zap.NewNop())
	require.NoError(t, applier.ReloadScenarios(context.Background()))

	err := applier.Apply(context.Background(), "work-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"archive-with-many-children"}, db.recordedMatches)
}

func TestGraphApplier_Apply_SkipsWhenDescendantCountTooLow(t *testing.T) {
	dir := newScenarioDir(t, `{"name":"needs-many","object_type":"ZIP","min_descendants":10}`)
	db := &fakeGraphDB{
		objects:     []graph.ObjectRow{{ID: 1, ObjectType: "ZIP"}},
		descendants: map[int64]int{1: 1},
	}
	applier := NewGraphApplier(db, dir, zap.NewNop())
	require.NoError(t, applier.ReloadScenarios(context.Background()))

	require.NoError(t, applier.Apply(context.Background(), "work-1"))
	assert.Empty(t, db.recordedMatches)
}

func TestGraphApplier_Apply_SkipsWhenTypeMismatches(t *testing.T) {
	dir := newScenarioDir(t, `{"name":"zip-only","object_type":"ZIP"}`)
	db := &fakeGraphDB{
		objects: []graph.ObjectRow{{ID: 1, ObjectType: "PDF"}},
	}
	applier := NewGraphApplier(db, dir, zap.NewNop())
	require.NoError(t, applier.ReloadScenarios(context.Background()))

	require.NoError(t, applier.Apply(context.Background(), "work-1"))
	assert.Empty(t, db.recordedMatches)
}

func TestGraphApplier_Apply_SkipsWhenRequiredSymbolMissing(t *testing.T) {
	dir := newScenarioDir(t, `{"name":"needs-symbol","required_symbols":["ENCRYPTED"]}`)
	db := &fakeGraphDB{
		objects: []graph.ObjectRow{{ID: 1, ObjectType: "ZIP", Result: graph.StoredResult{Symbols: []string{"ZIP_OK"}}}},
	}
	applier := NewGraphApplier(db, dir, zap.NewNop())
	require.NoError(t, applier.ReloadScenarios(context.Background()))

	require.NoError(t, applier.Apply(context.Background(), "work-1"))
	assert.Empty(t, db.recordedMatches)
}

func TestGraphApplier_Apply_NoopWithoutScenariosLoaded(t *testing.T) {
	db := &fakeGraphDB{objects: []graph.ObjectRow{{ID: 1, ObjectType: "ZIP"}}}
	applier := NewGraphApplier(db, t.TempDir(), zap.NewNop())

	require.NoError(t, applier.Apply(context.Background(), "work-1"))
	assert.Empty(t, db.recordedMatches)
}

func TestGraphApplier_ReloadScenarios_KeepsPreviousSetOnReadError(t *testing.T) {
	dir := newScenarioDir(t, `{"name":"keep-me"}`)
	applier := NewGraphApplier(&fakeGraphDB{}, dir, zap.NewNop())
	require.NoError(t, applier.ReloadScenarios(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	err := applier.ReloadScenarios(context.Background())

	assert.Error(t, err)
	assert.Len(t, applier.scenarios, 1)
	assert.Equal(t, "keep-me", applier.scenarios[0].Name)
}
