package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/taskmgr/internal/task"
)

// Processes is the part of the process service the REST surface needs.
type Processes interface {
	AddProcess(ctx context.Context, title string, st task.Strategy, p task.Priority) (task.Process, error)
	ListProcesses(ctx context.Context, key task.SortKey) ([]task.Process, error)
	GetProcess(ctx context.Context, pid int64) (task.Process, error)
	KillProcesses(ctx context.Context, pids ...int64) ([]task.Process, error)
	KillAllProcesses(ctx context.Context) ([]task.Process, error)
}

// Router provides embeddable HTTP handlers for the task API.
// Endpoints:
//
//	POST   {basePath}/tasks                      body: {task, type, priority}
//	GET    {basePath}/tasks                      list ordered by creation time
//	GET    {basePath}/tasks/sortedBy/{sortKey}   DATE, PRIORITY or ID
//	GET    {basePath}/tasks/{id}
//	DELETE {basePath}/tasks/remove/{id}
//	DELETE {basePath}/tasks/remove/              body: {list: [id...]}
//	DELETE {basePath}/tasks/remove/all
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	svc      Processes
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// A nil logger falls back to slog.Default().
func NewRouter(svc Processes, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{svc: svc, basePath: sanitizeBase(basePath), log: log}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestID(), requestLogger(r.log))
	g.NoRoute(func(c *gin.Context) {
		writeJSON(c, http.StatusNotFound, newErrorResp("no route for "+c.Request.Method+" "+c.Request.URL.Path))
	})
	tasks := g.Group(r.basePath + "/tasks")
	tasks.POST("", r.handleCreate)
	tasks.GET("", r.handleList)
	tasks.GET("/", r.handleList)
	tasks.GET("/sortedBy/:sortKey", r.handleListSorted)
	tasks.GET("/:id", r.handleGet)
	tasks.DELETE("/remove/all", r.handleRemoveAll)
	tasks.DELETE("/remove/:id", r.handleRemoveOne)
	tasks.DELETE("/remove/", r.handleRemoveBatch)
	return g
}

// NewServer binds addr and serves the router on it, over TLS when tlsCfg is
// not nil. A bind failure is returned; later serve errors are logged.
func NewServer(addr, basePath string, svc Processes, tlsCfg *tls.Config, log *slog.Logger) (*http.Server, error) {
	r := NewRouter(svc, basePath, log)
	return serve(addr, r.Handler(), tlsCfg, r.log)
}

func serve(addr string, h http.Handler, tlsCfg *tls.Config, log *slog.Logger) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server.Addr = ln.Addr().String()
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

// Type and Priority decode through their UnmarshalText, so an unknown name
// fails the bind with a *task.Error.
type createReq struct {
	Task     string         `json:"task" binding:"required"`
	Type     *task.Strategy `json:"type" binding:"required"`
	Priority *task.Priority `json:"priority" binding:"required"`
}

type removeReq struct {
	List []int64 `json:"list" binding:"required,min=1"`
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		var te *task.Error
		if !errors.As(err, &te) {
			err = &task.Error{Kind: task.ErrValidation, Msg: bindMessage(err)}
		}
		r.writeError(c, err)
		return
	}
	p, err := r.svc.AddProcess(c.Request.Context(), req.Task, *req.Type, *req.Priority)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (r *Router) handleList(c *gin.Context) {
	r.list(c, task.SortByDate)
}

func (r *Router) handleListSorted(c *gin.Context) {
	key, err := task.ParseSortKey(c.Param("sortKey"))
	if err != nil {
		r.writeError(c, err)
		return
	}
	r.list(c, key)
}

func (r *Router) list(c *gin.Context, key task.SortKey) {
	ps, err := r.svc.ListProcesses(c.Request.Context(), key)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

func (r *Router) handleGet(c *gin.Context) {
	id, err := parsePID(c.Param("id"))
	if err != nil {
		r.writeError(c, &task.Error{Kind: task.ErrValidation, Msg: err.Error()})
		return
	}
	p, err := r.svc.GetProcess(c.Request.Context(), id)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleRemoveOne(c *gin.Context) {
	id, err := parsePID(c.Param("id"))
	if err != nil {
		r.writeError(c, &task.Error{Kind: task.ErrValidation, Msg: err.Error()})
		return
	}
	r.kill(c, id)
}

func (r *Router) handleRemoveBatch(c *gin.Context) {
	var req removeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		r.writeError(c, &task.Error{Kind: task.ErrValidation, Msg: bindMessage(err)})
		return
	}
	r.kill(c, req.List...)
}

func (r *Router) kill(c *gin.Context, ids ...int64) {
	ps, err := r.svc.KillProcesses(c.Request.Context(), ids...)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

func (r *Router) handleRemoveAll(c *gin.Context) {
	ps, err := r.svc.KillAllProcesses(c.Request.Context())
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

// writeError maps the error kind to a status code. Errors without a known
// kind are infrastructure failures; their detail is logged, not returned.
func (r *Router) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		r.log.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey), "error", err)
		msg = "internal server error"
	} else {
		r.log.Debug("request rejected", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", code, "error", msg)
	}
	writeJSON(c, code, newErrorResp(msg))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrValidation),
		errors.Is(err, task.ErrCapacityExceeded),
		errors.Is(err, task.ErrPriorityOrder),
		errors.Is(err, task.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
