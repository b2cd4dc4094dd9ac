package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// DB implements store.Store on PostgreSQL through the pgx database/sql driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			pid BIGSERIAL PRIMARY KEY,
			task TEXT NOT NULL,
			priority SMALLINT NOT NULL,
			created TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_created ON processes(created, pid);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_priority ON processes(priority, created, pid);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) Close() error { return p.db.Close() }

// WithTx locks the processes table in a self-conflicting mode before running
// fn, so concurrent admissions from any number of service instances serialize
// while plain reads continue.
func (p *DB) WithTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `LOCK TABLE processes IN SHARE ROW EXCLUSIVE MODE;`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock processes: %w", err)
	}
	if err := fn(queries{ex: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *DB) Insert(ctx context.Context, rec task.Process) (task.Process, error) {
	return queries{ex: p.db}.Insert(ctx, rec)
}

func (p *DB) Get(ctx context.Context, pid int64) (task.Process, error) {
	return queries{ex: p.db}.Get(ctx, pid)
}

func (p *DB) Delete(ctx context.Context, pids ...int64) (int64, error) {
	return queries{ex: p.db}.Delete(ctx, pids...)
}

func (p *DB) DeleteAll(ctx context.Context) (int64, error) {
	return queries{ex: p.db}.DeleteAll(ctx)
}

func (p *DB) Count(ctx context.Context) (int, error) {
	return queries{ex: p.db}.Count(ctx)
}

func (p *DB) Scan(ctx context.Context, order task.SortKey) ([]task.Process, error) {
	return queries{ex: p.db}.Scan(ctx, order)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	ex execer
}

func (q queries) Insert(ctx context.Context, rec task.Process) (task.Process, error) {
	err := q.ex.QueryRowContext(ctx,
		`INSERT INTO processes(task, priority, created) VALUES($1, $2, $3) RETURNING pid;`,
		rec.Task, int(rec.Priority), rec.Created.UTC()).Scan(&rec.PID)
	if err != nil {
		return task.Process{}, err
	}
	return rec, nil
}

func (q queries) Get(ctx context.Context, pid int64) (task.Process, error) {
	row := q.ex.QueryRowContext(ctx, `SELECT pid, task, priority, created FROM processes WHERE pid=$1;`, pid)
	rec, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Process{}, store.ErrNotFound
	}
	return rec, err
}

func (q queries) Delete(ctx context.Context, pids ...int64) (int64, error) {
	var total int64
	for _, pid := range pids {
		res, err := q.ex.ExecContext(ctx, `DELETE FROM processes WHERE pid=$1;`, pid)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (q queries) DeleteAll(ctx context.Context) (int64, error) {
	res, err := q.ex.ExecContext(ctx, `DELETE FROM processes;`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q queries) Count(ctx context.Context) (int, error) {
	var n int
	err := q.ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM processes;`).Scan(&n)
	return n, err
}

func (q queries) Scan(ctx context.Context, order task.SortKey) ([]task.Process, error) {
	rows, err := q.ex.QueryContext(ctx, `SELECT pid, task, priority, created FROM processes `+orderBy(order)+`;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []task.Process
	for rows.Next() {
		rec, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func orderBy(order task.SortKey) string {
	switch order {
	case task.SortByPriority:
		return "ORDER BY priority, created, pid"
	case task.SortByID:
		return "ORDER BY pid"
	default:
		return "ORDER BY created, pid"
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(sc scanner) (task.Process, error) {
	var (
		rec     task.Process
		prio    int
		created time.Time
	)
	if err := sc.Scan(&rec.PID, &rec.Task, &prio, &created); err != nil {
		return task.Process{}, err
	}
	rec.Priority = task.Priority(prio)
	rec.Created = created.UTC()
	return rec, nil
}
