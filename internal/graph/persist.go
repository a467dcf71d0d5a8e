package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/contextal/workgraph/internal/jobresult"
)

// pendingNode is one entry on the explicit work-stack SaveResult walks,
// a plain slice in place of recursion so stack depth is bounded and
// inspectable.
type pendingNode struct {
	node     jobresult.JobResult
	parentID *int64
}

// SaveResult persists one JobResult tree within a single transaction,
// pre-order DFS: the parent row is inserted first, and its generated id
// becomes the parent_id for every child edge. The insert uses
// ON CONFLICT (work_id, object_id, is_entry) DO UPDATE ... RETURNING id so
// that re-delivery of an already-committed message is a safe no-op that
// still recovers the existing row id, satisfying at-least-once delivery
// without creating duplicate rows.
//
// On any error the transaction is rolled back and a *Error is returned with
// Transient set appropriately so the caller (internal/grapher) can decide
// whether to reject the broker delivery with requeue=true or false.
func (db *DB) SaveResult(ctx context.Context, workID string, entry jobresult.JobResult) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return transientErr("save: begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stack := []pendingNode{{node: entry, parentID: nil}}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id, err := insertNode(ctx, tx, workID, n)
		if err != nil {
			return err
		}
		if err := insertRel(ctx, tx, n.parentID, id, n.node.RelationMetadata); err != nil {
			return err
		}

		if n.node.Result.Ok != nil {
			// Pushed in reverse so the LIFO pop visits siblings in their
			// declared order.
			children := n.node.Result.Ok.Children
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, pendingNode{node: children[i], parentID: &id})
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return transientErr("save: commit", err)
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, workID string, n pendingNode) (int64, error) {
	info := n.node.Info
	isEntry := n.parentID == nil

	if info.Size > math.MaxInt64 {
		return 0, permanentErr("save", fmt.Errorf("object %s: size %d exceeds int64", info.ObjectID, info.Size))
	}
	if info.RecursionLevel > math.MaxInt32 {
		return 0, permanentErr("save", fmt.Errorf("object %s: recursion_level %d exceeds int32", info.ObjectID, info.RecursionLevel))
	}

	resultJSON, err := buildStoredResultJSON(n.node)
	if err != nil {
		return 0, permanentErr("save", fmt.Errorf("object %s: encode result: %w", info.ObjectID, err))
	}

	hashesJSON, err := marshalSanitized(info.Hashes)
	if err != nil {
		return 0, permanentErr("save", fmt.Errorf("object %s: encode hashes: %w", info.ObjectID, err))
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO objects
			(org, work_id, is_entry, object_id, object_type, object_subtype,
			 recursion_level, size, hashes, t, result, entropy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (work_id, object_id, is_entry) DO UPDATE SET id = objects.id
		RETURNING id
	`,
		info.Org, workID, isEntry, info.ObjectID, info.ObjectType, info.ObjectSubtype,
		int32(info.RecursionLevel), int64(info.Size), hashesJSON, timeFromCtime(info.Ctime), resultJSON, info.Entropy,
	).Scan(&id)
	if err != nil {
		return 0, transientErr("save: insert object", err)
	}
	return id, nil
}

func insertRel(ctx context.Context, tx *sql.Tx, parentID *int64, childID int64, relMeta any) error {
	propsJSON, err := marshalSanitized(relMeta)
	if err != nil {
		return permanentErr("save", fmt.Errorf("encode relation_metadata: %w", err))
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rels (parent, child, props)
		VALUES ($1, $2, $3)
		ON CONFLICT (child) DO NOTHING
	`, parentID, childID, propsJSON)
	if err != nil {
		return transientErr("save: insert rel", err)
	}
	return nil
}

// buildStoredResultJSON strips children from an "ok" node (they are
// persisted as separate rows), folds in the node's symbols, and applies
// NUL-replacement before marshaling.
func buildStoredResultJSON(n jobresult.JobResult) ([]byte, error) {
	stored := StoredResult{Symbols: n.Symbols}
	switch {
	case n.Result.Ok != nil:
		stored.Ok = &StoredOk{ObjectMetadata: n.Result.Ok.ObjectMetadata}
	case n.Result.Err != nil:
		stored.Err = &StoredErr{Message: n.Result.Err.Message}
	}
	return marshalSanitized(stored)
}

// marshalSanitized JSON-encodes v, round-trips it through an untyped tree,
// and replaces embedded NUL bytes before re-encoding. This is the one
// place in this repository JSON is walked dynamically, confined to the
// persistence boundary.
func marshalSanitized(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(replaceNUL(tree))
}

func timeFromCtime(ctime float64) time.Time {
	secs := int64(ctime)
	nanos := int64((ctime - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}
