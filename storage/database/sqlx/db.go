package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// conn holds the DB and, inside a transaction, the current tx.
type conn struct {
	db   core.DB
	exec core.DBExecutor
}

func newConn(db core.DB) conn {
	return conn{db: db, exec: db}
}

func (c conn) inTx() bool {
	_, ok := c.exec.(core.DBTransactor)
	return ok
}

// atomic runs fn in a transaction: committed if fn succeeds, rolled back otherwise.
// Nested calls join the current transaction.
func (c conn) atomic(ctx context.Context, fn func(tx conn) error) (err error) {
	if c.inTx() {
		return fn(c)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(conn{db: c.db, exec: tx})
}

func (c conn) get(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return c.exec.GetContext(ctx, dest, q, args...)
}

func (c conn) selekt(ctx context.Context, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return c.exec.SelectContext(ctx, dest, q, args...)
}

// run executes a statement and returns the number of affected rows.
func (c conn) run(ctx context.Context, query sq.Sqlizer) (int, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := c.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// trapNoRowsErr maps "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// uniqueViolation returns the constraint name of a unique violation error, or "".
func uniqueViolation(err error) string {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" {
		return pqErr.Constraint
	}
	return ""
}

// validUUID guards the uuid columns against malformed ids (which Postgres rejects with an error).
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID() string {
	return uuid.NewString()
}

// orderBy converts orderings to ORDER BY clauses, keeping the known fields only.
func orderBy(query sq.SelectBuilder, ordering []core.DBOrdering, columns map[string]string, fallback ...string) sq.SelectBuilder {
	clauses := make([]string, 0, len(ordering)+len(fallback))
	for _, ord := range core.MapOrderings(ordering, columns) {
		clauses = append(clauses, ord.String())
	}
	clauses = append(clauses, fallback...)
	return query.OrderBy(clauses...)
}
