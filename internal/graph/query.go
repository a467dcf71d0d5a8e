package graph

import (
	"context"
	"encoding/json"
	"time"
)

// ObjectRow is a read projection of one objects row, used by
// internal/rulesengine to evaluate scenario predicates against an
// already-committed work.
type ObjectRow struct {
	ID         int64
	ObjectType string
	Result     StoredResult
}

// ObjectsForWork returns every object row committed for workID, in
// insertion order (lowest id first, i.e. entry first).
func (db *DB) ObjectsForWork(ctx context.Context, workID string) ([]ObjectRow, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT id, object_type, result FROM objects
		WHERE work_id = $1
		ORDER BY id ASC
	`, workID)
	if err != nil {
		return nil, transientErr("query: objects for work", err)
	}
	defer rows.Close()

	var out []ObjectRow
	for rows.Next() {
		var (
			row        ObjectRow
			resultJSON []byte
		)
		if err := rows.Scan(&row.ID, &row.ObjectType, &resultJSON); err != nil {
			return nil, transientErr("query: scan object row", err)
		}
		if err := json.Unmarshal(resultJSON, &row.Result); err != nil {
			return nil, transientErr("query: decode stored result", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, transientErr("query: objects for work", err)
	}
	return out, nil
}

// DescendantCount returns the number of objects transitively reachable
// from objectRowID via rels, using a recursive CTE over the parent/child
// edges.
func (db *DB) DescendantCount(ctx context.Context, objectRowID int64) (int, error) {
	const q = `
		WITH RECURSIVE descendants(id) AS (
			SELECT child FROM rels WHERE parent = $1
			UNION ALL
			SELECT r.child FROM rels r JOIN descendants d ON r.parent = d.id
		)
		SELECT COUNT(*) FROM descendants
	`
	var count int
	if err := db.sql.QueryRowContext(ctx, q, objectRowID).Scan(&count); err != nil {
		return 0, transientErr("query: descendant count", err)
	}
	return count, nil
}

// RecordScenarioMatch inserts a scenario_matches row for (workID, scenario,
// objectRowID), ignoring a conflict so repeated applies for the same work
// are idempotent.
func (db *DB) RecordScenarioMatch(ctx context.Context, workID, scenario string, objectRowID int64) error {
	_, err := db.sql.ExecContext(ctx, `
		INSERT INTO scenario_matches (work_id, scenario, object_row_id, matched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (work_id, scenario, object_row_id) DO NOTHING
	`, workID, scenario, objectRowID, time.Now().UTC())
	if err != nil {
		return transientErr("query: record scenario match", err)
	}
	return nil
}
