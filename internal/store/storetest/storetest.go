// Package storetest holds behaviour checks shared by every store.Store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskmgr/internal/store"
	"github.com/loykin/taskmgr/internal/task"
)

// Run exercises st. st must be empty and have its schema in place.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mk := func(title string, p task.Priority, offset time.Duration) task.Process {
		rec, err := task.New(title, p, base.Add(offset))
		require.NoError(t, err)
		return rec
	}

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		in := mk("alpha", task.High, 1500*time.Microsecond)
		got, err := st.Insert(ctx, in)
		require.NoError(t, err)
		assert.Positive(t, got.PID)

		back, err := st.Get(ctx, got.PID)
		require.NoError(t, err)
		assert.Equal(t, got.Task, back.Task)
		assert.Equal(t, got.Priority, back.Priority)
		assert.True(t, got.Created.Equal(back.Created), "created %v != %v", got.Created, back.Created)

		_, err = st.Get(ctx, got.PID+1000)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = st.DeleteAll(ctx)
		require.NoError(t, err)
	})

	t.Run("IdsNotReused", func(t *testing.T) {
		a, err := st.Insert(ctx, mk("a", task.Low, 0))
		require.NoError(t, err)
		n, err := st.Delete(ctx, a.PID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		b, err := st.Insert(ctx, mk("b", task.Low, 0))
		require.NoError(t, err)
		assert.Greater(t, b.PID, a.PID)

		_, err = st.DeleteAll(ctx)
		require.NoError(t, err)
	})

	t.Run("ScanOrders", func(t *testing.T) {
		p1, _ := st.Insert(ctx, mk("p1", task.Medium, 2*time.Second))
		p2, _ := st.Insert(ctx, mk("p2", task.Low, time.Second))
		p3, _ := st.Insert(ctx, mk("p3", task.High, 0))
		p4, _ := st.Insert(ctx, mk("p4", task.Low, time.Second))

		byDate, err := st.Scan(ctx, task.SortByDate)
		require.NoError(t, err)
		assert.Equal(t, []int64{p3.PID, p2.PID, p4.PID, p1.PID}, pids(byDate))

		byPrio, err := st.Scan(ctx, task.SortByPriority)
		require.NoError(t, err)
		assert.Equal(t, []int64{p2.PID, p4.PID, p1.PID, p3.PID}, pids(byPrio))

		byID, err := st.Scan(ctx, task.SortByID)
		require.NoError(t, err)
		assert.Equal(t, []int64{p1.PID, p2.PID, p3.PID, p4.PID}, pids(byID))

		again, err := st.Scan(ctx, task.SortByDate)
		require.NoError(t, err)
		assert.Equal(t, byDate, again)

		c, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, c)

		n, err := st.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("TxRollback", func(t *testing.T) {
		keep, err := st.Insert(ctx, mk("keep", task.Low, 0))
		require.NoError(t, err)
		boom := errors.New("boom")
		err = st.WithTx(ctx, func(q store.Querier) error {
			if _, err := q.Delete(ctx, keep.PID); err != nil {
				return err
			}
			if _, err := q.Insert(ctx, mk("ghost", task.High, 0)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		all, err := st.Scan(ctx, task.SortByID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, keep.PID, all[0].PID)

		_, err = st.DeleteAll(ctx)
		require.NoError(t, err)
	})

	t.Run("TxSerializesReadModifyWrite", func(t *testing.T) {
		const limit = 5
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = st.WithTx(ctx, func(q store.Querier) error {
					n, err := q.Count(ctx)
					if err != nil || n >= limit {
						return err
					}
					_, err = q.Insert(ctx, mk("c", task.Low, 0))
					return err
				})
			}()
		}
		wg.Wait()
		c, err := st.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, limit, c)

		_, err = st.DeleteAll(ctx)
		require.NoError(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, st.Ping(ctx))
	})
}

func pids(ps []task.Process) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.PID
	}
	return out
}
