// Package service coordinates the admission engine, the record store and the
// capacity setting. Every read-modify-write runs inside one store transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loykin/taskmgr/internal/admission"
	"github.com/loykin/taskmgr/internal/clock"
	"github.com/loykin/taskmgr/internal/history"
	"github.com/loykin/taskmgr/internal/metrics"
	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// DefaultCapacity is used when no capacity option is given.
const DefaultCapacity = 25

var tracer = otel.Tracer("github.com/loykin/taskmgr/internal/service")

// Service is safe for concurrent use.
type Service struct {
	store    store.Store
	capacity atomic.Int64
	logger   *slog.Logger
	sinks    []history.Sink
}

type Option func(*Service)

func WithCapacity(n int) Option {
	return func(s *Service) { s.capacity.Store(int64(n)) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory adds sinks that receive lifecycle events after each commit.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// New prepares st and reconciles it against the configured capacity: when
// the store already holds more records than allowed, all of them are removed.
func New(ctx context.Context, st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("service: nil store")
	}
	s := &Service{store: st, logger: slog.Default()}
	s.capacity.Store(DefaultCapacity)
	for _, o := range opts {
		o(s)
	}
	if c := s.capacity.Load(); c < 0 {
		return nil, task.NegativeCapacity(int(c))
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.reconcile(ctx); err != nil {
		return nil, err
	}
	metrics.SetCapacity(s.MaxCapacity())
	return s, nil
}

func (s *Service) reconcile(ctx context.Context) error {
	limit := s.MaxCapacity()
	var purged []task.Process
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		n, err := q.Count(ctx)
		if err != nil {
			return err
		}
		if n <= limit {
			metrics.SetRecords(n)
			return nil
		}
		if purged, err = q.Scan(ctx, task.SortByDate); err != nil {
			return err
		}
		if _, err = q.DeleteAll(ctx); err != nil {
			return err
		}
		metrics.SetRecords(0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}
	if len(purged) == 0 {
		return nil
	}
	s.logger.Info("stored processes exceed capacity, removed all of them",
		"removed", len(purged), "max", limit)
	metrics.AddRemovals(metrics.ReasonPurge, len(purged))
	for _, p := range purged {
		s.emit(ctx, history.NewEvent(history.EventPurge, p, ""))
	}
	return nil
}

// AddProcess admits a new record under strategy st.
// A policy rejection is returned as a *task.Error of kind
// task.ErrCapacityExceeded or task.ErrPriorityOrder.
func (s *Service) AddProcess(ctx context.Context, title string, st task.Strategy, prio task.Priority) (task.Process, error) {
	ctx, span := tracer.Start(ctx, "AddProcess", trace.WithAttributes(
		attribute.String("taskmgr.strategy", st.String()),
		attribute.String("taskmgr.priority", prio.String()),
	))
	defer span.End()

	p, err := task.New(title, prio, clock.Now())
	if err != nil {
		return task.Process{}, endSpan(span, err)
	}
	limit := s.MaxCapacity()
	began := time.Now()

	var (
		out   admission.Outcome
		saved task.Process
		size  int
	)
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		o, err := admission.Admit(ctx, q, p, st, limit)
		if err != nil {
			return err
		}
		out = o
		if o.Action == admission.Reject {
			return nil
		}
		if saved, err = q.Insert(ctx, p); err != nil {
			return fmt.Errorf("insert process: %w", err)
		}
		if size, err = q.Count(ctx); err != nil {
			return err
		}
		// under the store lock, so gauge updates follow commit order
		metrics.SetRecords(size)
		return nil
	})
	if err != nil {
		return task.Process{}, endSpan(span, err)
	}
	span.SetAttributes(attribute.String("taskmgr.outcome", out.Action.String()))
	metrics.ObserveAdmission(st.String(), out.Action.String(), time.Since(began).Seconds())

	if out.Action == admission.Reject {
		s.logger.Warn("process rejected", "task", p.Task, "strategy", st,
			"priority", p.Priority, "reason", out.Reason)
		return task.Process{}, endSpan(span, out.Reason)
	}
	if out.Evicted != nil {
		span.SetAttributes(attribute.Int64("taskmgr.evicted_pid", out.Evicted.PID))
		metrics.IncEviction(st.String())
		s.logger.Info("process evicted", "pid", out.Evicted.PID, "strategy", st,
			"evicted_priority", out.Evicted.Priority, "for_pid", saved.PID)
		s.emit(ctx, history.NewEvent(history.EventEvict, *out.Evicted, st.String()))
	}
	s.logger.Debug("process added", "pid", saved.PID, "strategy", st,
		"priority", saved.Priority, "size", size, "max", limit)
	s.emit(ctx, history.NewEvent(history.EventAdmit, saved, st.String()))
	return saved, nil
}

// ListProcesses returns every record ordered by key. The result is never nil.
func (s *Service) ListProcesses(ctx context.Context, key task.SortKey) ([]task.Process, error) {
	ps, err := s.store.Scan(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	if ps == nil {
		ps = []task.Process{}
	}
	s.logger.Debug("processes listed", "sort", key.String(), "count", len(ps))
	return ps, nil
}

func (s *Service) GetProcess(ctx context.Context, pid int64) (task.Process, error) {
	p, err := s.store.Get(ctx, pid)
	if errors.Is(err, store.ErrNotFound) {
		return task.Process{}, task.NotFound(pid)
	}
	if err != nil {
		return task.Process{}, fmt.Errorf("get process %d: %w", pid, err)
	}
	return p, nil
}

// KillProcesses removes every listed pid or none of them. The result follows
// the order of pids; a pid listed twice appears twice but is removed once.
func (s *Service) KillProcesses(ctx context.Context, pids ...int64) ([]task.Process, error) {
	ctx, span := tracer.Start(ctx, "KillProcesses", trace.WithAttributes(attribute.Int("taskmgr.requested", len(pids))))
	defer span.End()

	if len(pids) == 0 {
		return nil, endSpan(span, &task.Error{Kind: task.ErrValidation, Msg: "list: must not be empty"})
	}
	var (
		killed []task.Process
		size   int
	)
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		killed = make([]task.Process, 0, len(pids))
		seen := make(map[int64]struct{}, len(pids))
		unique := make([]int64, 0, len(pids))
		for _, pid := range pids {
			p, err := q.Get(ctx, pid)
			if errors.Is(err, store.ErrNotFound) {
				return task.NotFound(pid)
			}
			if err != nil {
				return fmt.Errorf("get process %d: %w", pid, err)
			}
			killed = append(killed, p)
			if _, dup := seen[pid]; !dup {
				seen[pid] = struct{}{}
				unique = append(unique, pid)
			}
		}
		if _, err := q.Delete(ctx, unique...); err != nil {
			return fmt.Errorf("delete processes: %w", err)
		}
		var err error
		if size, err = q.Count(ctx); err != nil {
			return err
		}
		metrics.SetRecords(size)
		return nil
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	removed := uniqueProcesses(killed)
	metrics.AddRemovals(metrics.ReasonKill, len(removed))
	s.logger.Info("processes killed", "pids", pids, "size", size)
	for _, p := range removed {
		s.emit(ctx, history.NewEvent(history.EventKill, p, ""))
	}
	return killed, nil
}

// KillAllProcesses empties the store and returns what it held, oldest first.
func (s *Service) KillAllProcesses(ctx context.Context) ([]task.Process, error) {
	ctx, span := tracer.Start(ctx, "KillAllProcesses")
	defer span.End()

	var all []task.Process
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		if all, err = q.Scan(ctx, task.SortByDate); err != nil {
			return err
		}
		if _, err = q.DeleteAll(ctx); err != nil {
			return err
		}
		metrics.SetRecords(0)
		return nil
	})
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("kill all processes: %w", err))
	}
	if all == nil {
		all = []task.Process{}
	}
	span.SetAttributes(attribute.Int("taskmgr.removed", len(all)))
	metrics.AddRemovals(metrics.ReasonKillAll, len(all))
	s.logger.Info("all processes killed", "count", len(all))
	for _, p := range all {
		s.emit(ctx, history.NewEvent(history.EventKill, p, ""))
	}
	return all, nil
}

// MaxCapacity returns the current limit.
func (s *Service) MaxCapacity() int { return int(s.capacity.Load()) }

// SetMaxCapacity raises the limit. Lowering it is refused with a
// task.ErrInvalidArgument error, since existing records would exceed it.
// Setting the current value again is a no-op.
func (s *Service) SetMaxCapacity(n int) error {
	if n < 0 {
		return task.NegativeCapacity(n)
	}
	for {
		cur := s.capacity.Load()
		if int64(n) < cur {
			return task.CapacityDecrease(n, int(cur))
		}
		if int64(n) == cur {
			return nil
		}
		if s.capacity.CompareAndSwap(cur, int64(n)) {
			metrics.SetCapacity(n)
			s.logger.Info("capacity raised", "from", cur, "to", n)
			return nil
		}
	}
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// emit delivers e to every sink. Sink failures are logged and otherwise ignored.
func (s *Service) emit(ctx context.Context, e history.Event) {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, e); err != nil {
			s.logger.Warn("history sink failed", "event", string(e.Type), "pid", e.Record.PID, "error", err)
		}
	}
}

// endSpan marks span failed and hands err back.
func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func uniqueProcesses(ps []task.Process) []task.Process {
	seen := make(map[int64]struct{}, len(ps))
	out := make([]task.Process, 0, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.PID]; ok {
			continue
		}
		seen[p.PID] = struct{}{}
		out = append(out, p)
	}
	return out
}
