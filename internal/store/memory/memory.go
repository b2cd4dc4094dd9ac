package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// DB implements store.Store in process memory. Data does not survive a restart.
type DB struct {
	mu     sync.Mutex
	st     state
	closed bool
}

type state struct {
	rows map[int64]task.Process
	next int64
}

var errClosed = errors.New("memory store closed")

func New() *DB {
	return &DB{st: state{rows: make(map[int64]task.Process)}}
}

func (d *DB) EnsureSchema(context.Context) error { return nil }

func (d *DB) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	return nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// WithTx runs fn against a private copy of the data while holding the lock
// and publishes the copy only when fn succeeds.
func (d *DB) WithTx(ctx context.Context, fn func(q store.Querier) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	work := d.st.clone()
	if err := fn(&work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.st = work
	return nil
}

func (d *DB) Insert(ctx context.Context, p task.Process) (task.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Insert(ctx, p)
}

func (d *DB) Get(ctx context.Context, pid int64) (task.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Get(ctx, pid)
}

func (d *DB) Delete(ctx context.Context, pids ...int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Delete(ctx, pids...)
}

func (d *DB) DeleteAll(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.DeleteAll(ctx)
}

func (d *DB) Count(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Count(ctx)
}

func (d *DB) Scan(ctx context.Context, order task.SortKey) ([]task.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Scan(ctx, order)
}

func (s state) clone() state {
	rows := make(map[int64]task.Process, len(s.rows))
	for k, v := range s.rows {
		rows[k] = v
	}
	return state{rows: rows, next: s.next}
}

func (s *state) Insert(_ context.Context, p task.Process) (task.Process, error) {
	s.next++
	p.PID = s.next
	s.rows[p.PID] = p
	return p, nil
}

func (s *state) Get(_ context.Context, pid int64) (task.Process, error) {
	p, ok := s.rows[pid]
	if !ok {
		return task.Process{}, store.ErrNotFound
	}
	return p, nil
}

func (s *state) Delete(_ context.Context, pids ...int64) (int64, error) {
	var n int64
	for _, pid := range pids {
		if _, ok := s.rows[pid]; ok {
			delete(s.rows, pid)
			n++
		}
	}
	return n, nil
}

func (s *state) DeleteAll(context.Context) (int64, error) {
	n := int64(len(s.rows))
	s.rows = make(map[int64]task.Process)
	return n, nil
}

func (s *state) Count(context.Context) (int, error) { return len(s.rows), nil }

func (s *state) Scan(_ context.Context, order task.SortKey) ([]task.Process, error) {
	out := make([]task.Process, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	store.Sort(out, order)
	return out, nil
}
