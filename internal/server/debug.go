package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linch-mind/daemon/internal/connector"
	"github.com/linch-mind/daemon/internal/metrics"
)

// NewDebugServer serves /healthz and /metrics on addr for local diagnostics.
// It is loopback-only by convention; the IPC socket remains the sole control
// surface. Returns the running server; shut it down with Shutdown or Close.
func NewDebugServer(addr string, sup *connector.Supervisor) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	g.GET("/debug/collectors", func(c *gin.Context) {
		c.JSON(http.StatusOK, sup.Statuses())
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// StopDebugServer shuts the debug listener down with a short deadline.
func StopDebugServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
