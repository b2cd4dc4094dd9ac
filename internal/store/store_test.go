package store

import (
	"testing"
	"time"

	"github.com/loykin/taskmgr/internal/task"
)

func TestSortOrders(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ps := []task.Process{
		{PID: 3, Priority: task.Low, Created: base.Add(2 * time.Second)},
		{PID: 1, Priority: task.High, Created: base},
		{PID: 2, Priority: task.Low, Created: base},
		{PID: 4, Priority: task.Medium, Created: base.Add(time.Second)},
	}
	pids := func(in []task.Process) []int64 {
		out := make([]int64, len(in))
		for i, p := range in {
			out[i] = p.PID
		}
		return out
	}
	check := func(order task.SortKey, want []int64) {
		t.Helper()
		cp := append([]task.Process(nil), ps...)
		Sort(cp, order)
		got := pids(cp)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%v: got %v want %v", order, got, want)
			}
		}
	}
	check(task.SortByDate, []int64{1, 2, 4, 3})
	check(task.SortByPriority, []int64{2, 3, 4, 1})
	check(task.SortByID, []int64{1, 2, 3, 4})
}
