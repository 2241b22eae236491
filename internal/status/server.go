// Package status serves a read-only view of a running simulation over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/seatflow/diner/internal/sim"
	"go.uber.org/zap"
)

// Source yields the latest published snapshot. *sim.Simulation satisfies it.
type Source interface {
	Snapshot() *sim.Snapshot
}

type Server struct {
	e   *echo.Echo
	src Source
	log *zap.Logger
}

func New(src Source, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{e: e, src: src, log: log}
	e.GET("/healthz", s.health)
	e.GET("/status", s.status)
	e.GET("/status/seats", s.seats)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr in the background. Listener errors other than a
// clean shutdown are logged.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server", zap.String("addr", addr), zap.Error(err))
		}
	}()
	s.log.Info("status server listening", zap.String("addr", addr))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	if s.src.Snapshot() == nil {
		return c.String(http.StatusServiceUnavailable, "starting")
	}
	return c.String(http.StatusOK, "ok")
}

func (s *Server) status(c echo.Context) error {
	snap := s.src.Snapshot()
	if snap == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no snapshot yet")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) seats(c echo.Context) error {
	snap := s.src.Snapshot()
	if snap == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no snapshot yet")
	}
	if c.QueryParam("free") == "true" {
		free := make([]sim.SeatView, 0, len(snap.Seats))
		for _, st := range snap.Seats {
			if !st.Occupied && !st.Retired {
				free = append(free, st)
			}
		}
		return c.JSON(http.StatusOK, free)
	}
	return c.JSON(http.StatusOK, snap.Seats)
}
