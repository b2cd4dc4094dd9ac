package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Capacity is the operator facing part of the process service.
type Capacity interface {
	MaxCapacity() int
	SetMaxCapacity(n int) error
	Ping(ctx context.Context) error
}

// AdminRouter serves the management endpoints:
//
//	GET  /capacity   {"max": n}
//	PUT  /capacity   body {"max": n}; the limit may only be raised
//	GET  /healthz
//	GET  /metrics    when a metrics handler is given
type AdminRouter struct {
	cap     Capacity
	metrics http.Handler
	log     *slog.Logger
}

func NewAdminRouter(c Capacity, metrics http.Handler, log *slog.Logger) *AdminRouter {
	if log == nil {
		log = slog.Default()
	}
	return &AdminRouter{cap: c, metrics: metrics, log: log}
}

func (a *AdminRouter) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestID())
	g.GET("/capacity", a.handleGetCapacity)
	g.PUT("/capacity", a.handleSetCapacity)
	g.GET("/healthz", a.handleHealth)
	if a.metrics != nil {
		g.GET("/metrics", gin.WrapH(a.metrics))
	}
	return g
}

// NewAdminServer binds addr and serves the management router on it.
func NewAdminServer(addr string, c Capacity, metrics http.Handler, tlsCfg *tls.Config, log *slog.Logger) (*http.Server, error) {
	a := NewAdminRouter(c, metrics, log)
	return serve(addr, a.Handler(), tlsCfg, a.log)
}

type capacityResp struct {
	Max int `json:"max"`
}

type capacityReq struct {
	Max *int `json:"max" binding:"required"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (a *AdminRouter) handleGetCapacity(c *gin.Context) {
	writeJSON(c, http.StatusOK, capacityResp{Max: a.cap.MaxCapacity()})
}

func (a *AdminRouter) handleSetCapacity(c *gin.Context) {
	var req capacityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, newErrorResp(bindMessage(err)))
		return
	}
	if err := a.cap.SetMaxCapacity(*req.Max); err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			a.log.Error("set capacity failed", "error", err)
		}
		writeJSON(c, code, newErrorResp(err.Error()))
		return
	}
	writeJSON(c, http.StatusOK, capacityResp{Max: a.cap.MaxCapacity()})
}

func (a *AdminRouter) handleHealth(c *gin.Context) {
	if err := a.cap.Ping(c.Request.Context()); err != nil {
		a.log.Warn("health check failed", "error", err)
		writeJSON(c, http.StatusServiceUnavailable, newErrorResp("store unavailable"))
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
