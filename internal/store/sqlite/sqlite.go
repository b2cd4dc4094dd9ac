package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
//
// The pool is limited to one connection, so transactions never interleave.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	// busy timeout helps when another process holds the file
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			pid INTEGER PRIMARY KEY AUTOINCREMENT,
			task TEXT NOT NULL,
			priority INTEGER NOT NULL,
			created INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_created ON processes(created, pid);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_priority ON processes(priority, created, pid);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) WithTx(ctx context.Context, fn func(q store.Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(queries{ex: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *DB) Insert(ctx context.Context, p task.Process) (task.Process, error) {
	return queries{ex: s.db}.Insert(ctx, p)
}

func (s *DB) Get(ctx context.Context, pid int64) (task.Process, error) {
	return queries{ex: s.db}.Get(ctx, pid)
}

func (s *DB) Delete(ctx context.Context, pids ...int64) (int64, error) {
	return queries{ex: s.db}.Delete(ctx, pids...)
}

func (s *DB) DeleteAll(ctx context.Context) (int64, error) {
	return queries{ex: s.db}.DeleteAll(ctx)
}

func (s *DB) Count(ctx context.Context) (int, error) {
	return queries{ex: s.db}.Count(ctx)
}

func (s *DB) Scan(ctx context.Context, order task.SortKey) ([]task.Process, error) {
	return queries{ex: s.db}.Scan(ctx, order)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	ex execer
}

func (q queries) Insert(ctx context.Context, p task.Process) (task.Process, error) {
	res, err := q.ex.ExecContext(ctx,
		`INSERT INTO processes(task, priority, created) VALUES(?, ?, ?);`,
		p.Task, int(p.Priority), p.Created.UTC().UnixNano())
	if err != nil {
		return task.Process{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return task.Process{}, err
	}
	p.PID = id
	return p, nil
}

func (q queries) Get(ctx context.Context, pid int64) (task.Process, error) {
	row := q.ex.QueryRowContext(ctx, `SELECT pid, task, priority, created FROM processes WHERE pid=?;`, pid)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Process{}, store.ErrNotFound
	}
	return p, err
}

func (q queries) Delete(ctx context.Context, pids ...int64) (int64, error) {
	var total int64
	for _, pid := range pids {
		res, err := q.ex.ExecContext(ctx, `DELETE FROM processes WHERE pid=?;`, pid)
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
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
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
		p       task.Process
		prio    int
		created int64
	)
	if err := sc.Scan(&p.PID, &p.Task, &prio, &created); err != nil {
		return task.Process{}, err
	}
	p.Priority = task.Priority(prio)
	p.Created = time.Unix(0, created).UTC()
	return p, nil
}
