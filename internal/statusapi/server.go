// Package statusapi serves a read-only view of the running sniper.
package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/controller"
	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/internal/metrics"
)

// StatusProvider is implemented by *controller.Controller.
type StatusProvider interface {
	Snapshot() controller.Status
}

// HoldingsProvider is implemented by *ledger.Ledger.
type HoldingsProvider interface {
	All() []domain.HoldingRecord
}

// Server exposes read-only bot state over HTTP.
type Server struct {
	status   StatusProvider
	holdings HoldingsProvider
	log      logrus.FieldLogger
	srv      *http.Server
}

// New creates a Server; call Start to begin listening.
func New(status StatusProvider, holdings HoldingsProvider, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{status: status, holdings: holdings, log: log}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/holdings", s.handleHoldings)

	r.GET("/debug/vars", gin.WrapH(metrics.VarsHandler()))
	r.GET("/debug/pprof/*name", gin.WrapH(metrics.PprofHandler()))
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleHoldings(c *gin.Context) {
	holdings := s.holdings.All()
	if holdings == nil {
		holdings = []domain.HoldingRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(holdings), "holdings": holdings})
}

// Start 非阻塞启动，监听失败直接返回错误
func (s *Server) Start(listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("status api stopped")
		}
	}()
	s.log.Infof("status api listening on %s", ln.Addr().String())
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
