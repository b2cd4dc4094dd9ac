package taskmgr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func TestManagerFacade(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, NewMemoryStore(), WithCapacity(1))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a, err := m.AddProcess(ctx, "a", Naive, Low)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.AddProcess(ctx, "b", Naive, High); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	b, err := m.AddProcess(ctx, "b", ByPriority, High)
	if err != nil {
		t.Fatalf("priority add: %v", err)
	}
	if _, err := m.GetProcess(ctx, a.PID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected evicted record to be gone, got %v", err)
	}
	ps, err := m.ListProcesses(ctx, SortByID)
	if err != nil || len(ps) != 1 || ps[0].PID != b.PID {
		t.Fatalf("list: %v %+v", err, ps)
	}
	if err := m.SetMaxCapacity(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := m.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	st, err := OpenStore("memory://")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, err := OpenStore("redis://x"); err == nil {
		t.Fatal("expected unsupported dsn error")
	}
}

func TestHandlersMount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := New(context.Background(), NewMemoryStore())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h := m.Handler("/api", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}

	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	admin := m.AdminHandler(nil, nil)
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capacity", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"max":25`) {
		t.Fatalf("capacity: %d %s", rec.Code, rec.Body.String())
	}
}
