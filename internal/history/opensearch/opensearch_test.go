package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/taskmgr/internal/history"
	"github.com/loykin/taskmgr/internal/task"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedPath string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedPath = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "task-history")
	rec := task.Process{PID: 12, Task: "compact", Priority: task.Medium, Created: time.Now().UTC()}
	event := history.NewEvent(history.EventEvict, rec, "FIFO")

	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if receivedMethod != http.MethodPut {
		t.Errorf("Expected PUT method, got: %s", receivedMethod)
	}
	if want := "/task-history/_doc/" + event.ID; receivedPath != want {
		t.Errorf("Expected URL path %s, got: %s", want, receivedPath)
	}

	var got map[string]any
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if got["type"] != string(history.EventEvict) {
		t.Errorf("Expected type %s, got: %v", history.EventEvict, got["type"])
	}
	record, ok := got["record"].(map[string]any)
	if !ok {
		t.Fatalf("Expected record in event, got: %v", got)
	}
	if record["task"] != "compact" || record["pid"] != float64(12) {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	err := sink.Send(context.Background(), history.NewEvent(history.EventKill, task.Process{PID: 1, Task: "x"}, ""))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}
