package graph

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migrate runs the ordered migration sequence under a version-table lock.
// Only the Grapher calls this; the Director (via internal/rulesengine)
// only ever reads an already-migrated schema.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return transientErr("migrate: begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (v INT NOT NULL)`); err != nil {
		return transientErr("migrate: create version table", err)
	}
	if _, err := tx.ExecContext(ctx, `LOCK TABLE version IN ACCESS EXCLUSIVE MODE`); err != nil {
		return transientErr("migrate: lock version table", err)
	}

	current, err := readOrSeedVersion(ctx, tx)
	if err != nil {
		return err
	}

	if current < 0 {
		return permanentErr("migrate", fmt.Errorf("corrupt schema version %d: negative", current))
	}
	if current > DBSchemaVersion {
		return permanentErr("migrate", fmt.Errorf("schema version %d is newer than the compiled-in target %d (downgrade attempt)", current, DBSchemaVersion))
	}

	for i := current; i < DBSchemaVersion; i++ {
		if err := applyMigration(ctx, tx, i); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET v = $1`, i+1); err != nil {
			return transientErr("migrate: update version", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return transientErr("migrate: commit", err)
	}

	db.log.Info("schema migrations applied", zap.Int("from", current), zap.Int("to", DBSchemaVersion))
	return nil
}

// readOrSeedVersion reads the single row of the version table, inserting
// the initial "0" row if the table is empty.
func readOrSeedVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT v FROM version LIMIT 1`).Scan(&v)
	switch err {
	case nil:
		return v, nil
	case sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO version (v) VALUES (0)`); err != nil {
			return 0, transientErr("migrate: seed version", err)
		}
		return 0, nil
	default:
		return 0, transientErr("migrate: read version", err)
	}
}

// applyMigration reads migrations/<i zero-padded to 6>.sql and executes
// its statements in order against tx. Statements are split on every
// semicolon, wherever it appears (see splitStatements), which constrains
// migration authoring: no semicolon may ever be embedded in a string or
// JSON literal inside a migration file. Both shipped files honor this;
// any future migration must too.
func applyMigration(ctx context.Context, tx *sql.Tx, i int) error {
	name := fmt.Sprintf("migrations/%06d.sql", i)
	content, err := migrationsFS.ReadFile(name)
	if err != nil {
		return permanentErr("migrate", fmt.Errorf("read %s: %w", name, err))
	}

	for _, stmt := range splitStatements(string(content)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return transientErr("migrate", fmt.Errorf("apply %s: %w", name, err))
		}
	}
	return nil
}

// splitStatements splits a migration file's text on every semicolon,
// discarding blank entries. It does not parse SQL: a semicolon inside a
// quoted literal would split mid-statement, hence the authoring
// constraint documented on applyMigration.
func splitStatements(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != ';' {
			continue
		}
		stmt := trimSpace(text[start:i])
		if stmt != "" {
			out = append(out, stmt)
		}
		start = i + 1
	}
	if rest := trimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && isSpace(s[i]) {
		i++
	}
	for j > i && isSpace(s[j-1]) {
		j--
	}
	return s[i:j]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
