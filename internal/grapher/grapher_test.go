package grapher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextal/workgraph/internal/jobresult"
	"github.com/contextal/workgraph/internal/object"
)

func TestFirstHashMismatch_DetectsBadNode(t *testing.T) {
	good := jobresult.JobResult{
		Info:   object.Info{ObjectID: "aaaa", Hashes: map[string]string{"sha256": "aaaa"}},
		Result: jobresult.Result{Ok: &jobresult.OkResult{}},
	}
	bad := jobresult.JobResult{
		Info: object.Info{ObjectID: "bbbb", Hashes: map[string]string{"sha256": "wrong"}},
	}
	tree := jobresult.JobResult{
		Info:   good.Info,
		Result: jobresult.Result{Ok: &jobresult.OkResult{Children: []jobresult.JobResult{bad}}},
	}

	node, found := firstHashMismatch(tree)
	assert.True(t, found)
	assert.Equal(t, "bbbb", node.Info.ObjectID)
}

func TestFirstHashMismatch_NoneFound(t *testing.T) {
	tree := jobresult.JobResult{
		Info:   object.Info{ObjectID: "aaaa", Hashes: map[string]string{"sha256": "aaaa"}},
		Result: jobresult.Result{Ok: &jobresult.OkResult{}},
	}

	_, found := firstHashMismatch(tree)
	assert.False(t, found)
}

func TestFailureNotifier_FireIsIdempotent(t *testing.T) {
	n := NewFailureNotifier()
	assert.True(t, n.Ready())

	n.Fire()
	n.Fire() // must not panic on double-close

	assert.False(t, n.Ready())
	select {
	case <-n.Done():
	default:
		t.Fatal("Done() channel should be closed after Fire")
	}
}
