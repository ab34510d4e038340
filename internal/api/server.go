// Package api is the local admin/control surface: status, manual exit
// commands, order-file import and prometheus metrics. It binds to loopback by
// default and performs no authentication; never expose it beyond the host
// running the engine.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"knite_oms/internal/engine"
	"knite_oms/internal/event"
	"knite_oms/internal/importer"
)

type Server struct {
	mgr  *engine.Manager
	http *http.Server
}

// NewServer builds the admin router around a running manager. Commands are
// delivered through the manager inbox, never by touching engine state.
func NewServer(listen string, mgr *engine.Manager, reg *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{mgr: mgr}
	r.GET("/status", s.getStatus)
	r.POST("/exit-all", s.postExitAll)
	r.POST("/panic", s.postPanic)
	r.POST("/orders/import", s.postImport)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	s.http = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run in its own goroutine.
func (s *Server) Start() error {
	slog.Info("admin server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.mgr.GetStatus())
}

func (s *Server) postExitAll(c *gin.Context) {
	s.send(c, event.ExitAll{BaseEvent: stamp()})
}

func (s *Server) postPanic(c *gin.Context) {
	s.send(c, event.ExitAll{BaseEvent: stamp(), Panic: true})
}

// postImport accepts an order-export file path, parses it and submits the
// batch. Parsing happens here so a bad file is reported to the caller
// instead of dying silently inside the loop.
func (s *Server) postImport(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := importer.ReadFile(req.Path)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if len(orders) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no orders in file", "count": 0})
		return
	}

	s.send(c, event.SubmitBatch{
		BaseEvent: stamp(),
		Intents:   orders,
		Priority:  event.PriorityLow,
	})
}

// send delivers one event to the manager inbox, refusing rather than
// blocking the HTTP handler when the inbox is saturated.
func (s *Server) send(c *gin.Context, ev event.Event) {
	select {
	case s.mgr.Inbox() <- ev:
		c.JSON(http.StatusAccepted, gin.H{"message": "accepted"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine inbox full"})
	}
}

func stamp() event.BaseEvent {
	return event.BaseEvent{Ts: time.Now().UnixMicro()}
}
