package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
)

// psql builds statements with Postgres $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapError translates driver errors into domain sentinels
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pqErr.Constraint)
		}
	}
	return err
}

// expectRows returns ErrNotFound when a write touched nothing
func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// staleStatus reports a status-guarded write that matched no row because a
// concurrent change moved the record first
func staleStatus(kind, id string, from any) error {
	return fmt.Errorf("%w: %s %s is no longer %v", domain.ErrInvalidTransition, kind, id, from)
}

// withTx runs fn inside a transaction, rolling back on error
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// count runs a COUNT(*) over the same table and predicate a list query uses
func count(ctx context.Context, db *sqlx.DB, from string, where sq.Sqlizer) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From(from).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// likePattern escapes LIKE wildcards in user input and wraps it for substring match
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func newID() string {
	return uuid.NewString()
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
