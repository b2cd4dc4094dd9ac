package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskmgr/internal/clock"
	"github.com/loykin/taskmgr/internal/history"
	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/store/memory"
	"github.com/loykin/taskmgr/internal/store/sqlite"
	"github.com/loykin/taskmgr/internal/task"
)

// tickingClock makes every clock.Now call one millisecond later than the previous one.
func tickingClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	var n atomic.Int64
	prev := clock.NowFunc
	clock.NowFunc = func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Millisecond) }
	t.Cleanup(func() { clock.NowFunc = prev })
}

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type failingSink struct{}

func (failingSink) Send(context.Context, history.Event) error { return errors.New("sink down") }

func newService(t *testing.T, capacity int, opts ...Option) *Service {
	t.Helper()
	tickingClock(t)
	svc, err := New(context.Background(), memory.New(), append([]Option{WithCapacity(capacity)}, opts...)...)
	require.NoError(t, err)
	return svc
}

func add(t *testing.T, svc *Service, title string, st task.Strategy, p task.Priority) task.Process {
	t.Helper()
	rec, err := svc.AddProcess(context.Background(), title, st, p)
	require.NoError(t, err)
	return rec
}

func titlesOf(ps []task.Process) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Task
	}
	return out
}

func TestNaiveFourthRejected(t *testing.T) {
	svc := newService(t, 3)
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		add(t, svc, n, task.Naive, task.Low)
	}
	_, err := svc.AddProcess(ctx, "d", task.Naive, task.High)
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrCapacityExceeded))
	assert.Equal(t, "The task manager has already accepted the maximum number of tasks: 3", err.Error())

	all, err := svc.ListProcesses(ctx, task.SortByDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, titlesOf(all))
}

func TestFIFOEvictsOldestAndRecordsHistory(t *testing.T) {
	sink := &recordingSink{}
	svc := newService(t, 3, WithHistory(sink))
	for _, n := range []string{"a", "b", "c"} {
		add(t, svc, n, task.Naive, task.High)
	}
	add(t, svc, "d", task.FIFO, task.Low)

	all, err := svc.ListProcesses(context.Background(), task.SortByDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, titlesOf(all))
	assert.Equal(t, []history.EventType{
		history.EventAdmit, history.EventAdmit, history.EventAdmit,
		history.EventEvict, history.EventAdmit,
	}, sink.types())
	assert.Equal(t, "a", sink.events[3].Record.Task)
	assert.Equal(t, "FIFO", sink.events[3].Strategy)
}

func TestPriorityScenarios(t *testing.T) {
	t.Run("AllHigher", func(t *testing.T) {
		svc := newService(t, 3)
		for _, n := range []string{"a", "b", "c"} {
			add(t, svc, n, task.Naive, task.High)
		}
		_, err := svc.AddProcess(context.Background(), "d", task.ByPriority, task.Medium)
		assert.True(t, errors.Is(err, task.ErrPriorityOrder))
		all, _ := svc.ListProcesses(context.Background(), task.SortByDate)
		assert.Len(t, all, 3)
	})
	t.Run("OneLower", func(t *testing.T) {
		svc := newService(t, 3)
		add(t, svc, "h1", task.Naive, task.High)
		add(t, svc, "low", task.Naive, task.Low)
		add(t, svc, "h2", task.Naive, task.High)
		add(t, svc, "m", task.ByPriority, task.Medium)
		all, _ := svc.ListProcesses(context.Background(), task.SortByDate)
		assert.Equal(t, []string{"h1", "h2", "m"}, titlesOf(all))
	})
}

func TestCreateGetRoundTrip(t *testing.T) {
	svc := newService(t, 5)
	saved := add(t, svc, "report", task.Naive, task.Medium)
	got, err := svc.GetProcess(context.Background(), saved.PID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, err = svc.GetProcess(context.Background(), saved.PID+100)
	assert.True(t, errors.Is(err, task.ErrNotFound))
	assert.Contains(t, err.Error(), "wasn't found")
}

func TestListingIsStableAndSorted(t *testing.T) {
	svc := newService(t, 10)
	add(t, svc, "m", task.Naive, task.Medium)
	add(t, svc, "h", task.Naive, task.High)
	add(t, svc, "l", task.Naive, task.Low)
	ctx := context.Background()

	first, err := svc.ListProcesses(ctx, task.SortByPriority)
	require.NoError(t, err)
	second, err := svc.ListProcesses(ctx, task.SortByPriority)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"l", "m", "h"}, titlesOf(first))

	byID, _ := svc.ListProcesses(ctx, task.SortByID)
	assert.Equal(t, []string{"m", "h", "l"}, titlesOf(byID))
}

func TestListEmptyIsNotNil(t *testing.T) {
	svc := newService(t, 1)
	all, err := svc.ListProcesses(context.Background(), task.SortByDate)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestKillProcessesAllOrNothing(t *testing.T) {
	svc := newService(t, 5)
	ctx := context.Background()
	a := add(t, svc, "a", task.Naive, task.Low)
	b := add(t, svc, "b", task.Naive, task.Low)
	add(t, svc, "c", task.Naive, task.Low)

	_, err := svc.KillProcesses(ctx, a.PID, 9999, b.PID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrNotFound))
	all, _ := svc.ListProcesses(ctx, task.SortByDate)
	assert.Len(t, all, 3)

	killed, err := svc.KillProcesses(ctx, b.PID, a.PID, b.PID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b"}, titlesOf(killed))
	all, _ = svc.ListProcesses(ctx, task.SortByDate)
	assert.Equal(t, []string{"c"}, titlesOf(all))

	_, err = svc.KillProcesses(ctx)
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestKillAllReturnsDateOrder(t *testing.T) {
	sink := &recordingSink{}
	svc := newService(t, 3, WithHistory(sink))
	add(t, svc, "first", task.Naive, task.High)
	add(t, svc, "second", task.Naive, task.Low)
	add(t, svc, "third", task.Naive, task.Medium)

	killed, err := svc.KillAllProcesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, titlesOf(killed))
	all, _ := svc.ListProcesses(context.Background(), task.SortByDate)
	assert.Empty(t, all)

	again, err := svc.KillAllProcesses(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.Empty(t, again)
	assert.Len(t, sink.types(), 6)
}

func TestCapacityRaiseOnly(t *testing.T) {
	svc := newService(t, 3)
	require.NoError(t, svc.SetMaxCapacity(5))
	assert.Equal(t, 5, svc.MaxCapacity())
	require.NoError(t, svc.SetMaxCapacity(5))

	err := svc.SetMaxCapacity(2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrInvalidArgument))
	assert.Equal(t, "The new capacity (2) cannot be less than the current one (5)", err.Error())
	assert.Equal(t, 5, svc.MaxCapacity())

	assert.True(t, errors.Is(svc.SetMaxCapacity(-1), task.ErrInvalidArgument))
}

func TestCapacityConcurrentRaisesKeepMaximum(t *testing.T) {
	svc := newService(t, 1)
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = svc.SetMaxCapacity(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, svc.MaxCapacity())
}

func TestRaisedCapacityAdmitsMore(t *testing.T) {
	svc := newService(t, 1)
	add(t, svc, "a", task.Naive, task.Low)
	_, err := svc.AddProcess(context.Background(), "b", task.Naive, task.Low)
	require.Error(t, err)
	require.NoError(t, svc.SetMaxCapacity(2))
	add(t, svc, "b", task.Naive, task.Low)
}

func TestConcurrentNaiveNeverExceedsCapacity(t *testing.T) {
	tickingClock(t)
	db, err := sqlite.New(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc, err := New(context.Background(), db, WithCapacity(10))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddProcess(context.Background(), "job", task.Naive, task.Medium)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, task.ErrCapacityExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), accepted.Load())
	assert.Equal(t, int64(30), rejected.Load())
	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestConcurrentFIFOKeepsSizeAtCapacity(t *testing.T) {
	svc := newService(t, 4)
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddProcess(context.Background(), "f", task.FIFO, task.Low)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	all, _ := svc.ListProcesses(context.Background(), task.SortByDate)
	assert.Len(t, all, 4)
}

func prefill(t *testing.T, st store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, err := task.New("old", task.Low, clock.Now())
		require.NoError(t, err)
		_, err = st.Insert(context.Background(), p)
		require.NoError(t, err)
	}
}

func TestStartupReconcile(t *testing.T) {
	tickingClock(t)
	ctx := context.Background()

	t.Run("OverCapacityPurges", func(t *testing.T) {
		st := memory.New()
		prefill(t, st, 5)
		sink := &recordingSink{}
		_, err := New(ctx, st, WithCapacity(3), WithHistory(sink))
		require.NoError(t, err)
		n, _ := st.Count(ctx)
		assert.Equal(t, 0, n)
		assert.Len(t, sink.types(), 5)
	})
	t.Run("AtCapacityKeeps", func(t *testing.T) {
		st := memory.New()
		prefill(t, st, 3)
		_, err := New(ctx, st, WithCapacity(3))
		require.NoError(t, err)
		n, _ := st.Count(ctx)
		assert.Equal(t, 3, n)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
	_, err = New(context.Background(), memory.New(), WithCapacity(-1))
	assert.True(t, errors.Is(err, task.ErrInvalidArgument))
}

func TestFailingSinkDoesNotFailAdmission(t *testing.T) {
	svc := newService(t, 2, WithHistory(failingSink{}))
	add(t, svc, "a", task.Naive, task.High)
}

func TestBlankTitleRejected(t *testing.T) {
	svc := newService(t, 2)
	_, err := svc.AddProcess(context.Background(), "", task.Naive, task.High)
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestPing(t *testing.T) {
	svc := newService(t, 1)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestZeroCapacityPriorityNeverEvicts(t *testing.T) {
	svc := newService(t, 0)
	ctx := context.Background()
	low := add(t, svc, "fifo-low", task.FIFO, task.Low)

	_, err := svc.AddProcess(ctx, "prio-high", task.ByPriority, task.High)
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrPriorityOrder)

	all, err := svc.ListProcesses(ctx, task.SortByDate)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, low.PID, all[0].PID)
}

func TestLogsCarryWireNames(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := newService(t, 1, WithLogger(log))
	add(t, svc, "a", task.FIFO, task.Medium)
	add(t, svc, "b", task.ByPriority, task.High)

	out := buf.String()
	assert.Contains(t, out, `"strategy":"FIFO"`)
	assert.Contains(t, out, `"strategy":"PRIORITY"`)
	assert.Contains(t, out, `"evicted_priority":"MEDIUM"`)
}
