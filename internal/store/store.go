package store

import (
	"context"
	"errors"
	"sort"

	"github.com/loykin/taskmgr/internal/task"
)

// ErrNotFound is returned by Get when no record has the requested pid.
var ErrNotFound = errors.New("store: record not found")

// Querier is the set of record operations available both on a Store and
// inside a transaction started with WithTx.
type Querier interface {
	// Insert persists p and returns it with the assigned PID. Ids are never reused.
	Insert(ctx context.Context, p task.Process) (task.Process, error)
	Get(ctx context.Context, pid int64) (task.Process, error)
	// Delete removes the given pids and reports how many rows were removed.
	Delete(ctx context.Context, pids ...int64) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
	// Scan returns every record in the requested order.
	// SortByDate orders by created then pid, SortByPriority by priority
	// ordinal then created then pid, SortByID by pid.
	Scan(ctx context.Context, order task.SortKey) ([]task.Process, error)
}

// Store is a persistent record set.
// WithTx runs fn atomically: either every write made through q is kept or
// none is, and concurrent WithTx calls observe each other serially.
type Store interface {
	Querier
	EnsureSchema(ctx context.Context) error
	WithTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Sort orders ps in place using the same rules as Querier.Scan.
func Sort(ps []task.Process, order task.SortKey) {
	switch order {
	case task.SortByID:
		sort.Slice(ps, func(i, j int) bool { return ps[i].PID < ps[j].PID })
	case task.SortByPriority:
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].Priority != ps[j].Priority {
				return ps[i].Priority < ps[j].Priority
			}
			return ps[i].Before(ps[j])
		})
	default:
		sort.Slice(ps, func(i, j int) bool { return ps[i].Before(ps[j]) })
	}
}
