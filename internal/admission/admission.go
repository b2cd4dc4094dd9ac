// Package admission decides whether a new process may enter a store that
// may already be at capacity, and which existing record gives way for it.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// Action is the verdict of an admission decision.
type Action int

const (
	Insert Action = iota
	Reject
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Outcome describes a decision. When Action is Insert and Evicted is set, the
// evicted record has already been removed through the querier given to Admit.
// When Action is Reject, Reason holds a *task.Error explaining why.
type Outcome struct {
	Action  Action
	Evicted *task.Process
	Reason  error
}

// ErrUnknownStrategy is returned for a strategy with no registered policy.
var ErrUnknownStrategy = errors.New("admission: unknown strategy")

// policy is consulted only when the store is at or above capacity.
type policy func(ctx context.Context, q store.Querier, p task.Process, capacity int) (Outcome, error)

var policies = map[task.Strategy]policy{
	task.Naive:      naive,
	task.FIFO:       fifo,
	task.ByPriority: byPriority,
}

// Admit runs the policy for s against q. It never inserts p itself; the
// caller inserts through the same q when the outcome is Insert, so eviction
// and insertion commit together.
func Admit(ctx context.Context, q store.Querier, p task.Process, s task.Strategy, capacity int) (Outcome, error) {
	pol, ok := policies[s]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnknownStrategy, s)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("count processes: %w", err)
	}
	if n < capacity {
		return Outcome{Action: Insert}, nil
	}
	return pol(ctx, q, p, capacity)
}

func naive(_ context.Context, _ store.Querier, _ task.Process, capacity int) (Outcome, error) {
	return Outcome{Action: Reject, Reason: task.CapacityExceeded(capacity)}, nil
}

func fifo(ctx context.Context, q store.Querier, _ task.Process, _ int) (Outcome, error) {
	victim, ok, err := oldest(ctx, q, func(task.Process) bool { return true })
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		// capacity 0 with an empty store
		return Outcome{Action: Insert}, nil
	}
	return evict(ctx, q, victim)
}

func byPriority(ctx context.Context, q store.Querier, p task.Process, capacity int) (Outcome, error) {
	if capacity == 0 {
		return Outcome{Action: Reject, Reason: task.PriorityOrder(capacity)}, nil
	}
	victim, ok, err := oldest(ctx, q, func(c task.Process) bool { return c.Priority < p.Priority })
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Action: Reject, Reason: task.PriorityOrder(capacity)}, nil
	}
	return evict(ctx, q, victim)
}

// oldest returns the first record in created order that satisfies match.
func oldest(ctx context.Context, q store.Querier, match func(task.Process) bool) (task.Process, bool, error) {
	all, err := q.Scan(ctx, task.SortByDate)
	if err != nil {
		return task.Process{}, false, fmt.Errorf("scan processes: %w", err)
	}
	for _, c := range all {
		if match(c) {
			return c, true, nil
		}
	}
	return task.Process{}, false, nil
}

func evict(ctx context.Context, q store.Querier, victim task.Process) (Outcome, error) {
	n, err := q.Delete(ctx, victim.PID)
	if err != nil {
		return Outcome{}, fmt.Errorf("evict %d: %w", victim.PID, err)
	}
	if n != 1 {
		return Outcome{}, fmt.Errorf("evict %d: record vanished", victim.PID)
	}
	return Outcome{Action: Insert, Evicted: &victim}, nil
}
