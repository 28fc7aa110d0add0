// Package statusapi implements a small read-only HTTP status server over
// a running Host: /health, /status/slots, /status/peers, /status/tempo.
// Grounded on
// rustyguts-bken/server/internal/httpapi's Echo application shape
// (echo.New, middleware.Recover, a slog-backed request logger, JSON
// responses, graceful Shutdown on context cancellation); this server
// only reads host state and never mutates it.
package statusapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shakfu/loopruntime/host"
)

// Server is the Echo application exposing host state over HTTP.
type Server struct {
	echo *echo.Echo
	h    *host.Host
	log  *slog.Logger
}

// New constructs a status server for h.
func New(h *host.Host, lg *slog.Logger) *Server {
	if lg == nil {
		lg = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(lg))

	s := &Server{echo: e, h: h, log: lg}
	s.registerRoutes()
	return s
}

func requestLogger(lg *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			lg.Debug("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/status/slots", s.handleSlots)
	s.echo.GET("/status/peers", s.handlePeers)
	s.echo.GET("/status/tempo", s.handleTempo)
}

// Run starts the server and blocks until ctx is cancelled or the server
// fails to start.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type slotsResponse struct {
	ActiveCount int  `json:"active_count"`
	Slots       []int `json:"playing_slots"`
}

func (s *Server) handleSlots(c echo.Context) error {
	resp := slotsResponse{ActiveCount: s.h.Playback.ActiveCount()}
	for i := 0; i < playbackMaxSlots; i++ {
		if s.h.Playback.IsSlotPlaying(i) {
			resp.Slots = append(resp.Slots, i)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// playbackMaxSlots mirrors playback.MaxSlots; duplicated rather than
// imported to keep this handler from depending on playback's internals
// beyond the Engine methods it already calls.
const playbackMaxSlots = 8

type peersResponse struct {
	NumPeers int     `json:"num_peers"`
	Tempo    float64 `json:"tempo"`
	Playing  bool    `json:"playing"`
}

func (s *Server) handlePeers(c echo.Context) error {
	return c.JSON(http.StatusOK, peersResponse{
		NumPeers: s.h.Tempo.NumPeers(),
		Tempo:    s.h.Tempo.GetTempo(),
		Playing:  s.h.Tempo.IsPlaying(),
	})
}

type tempoResponse struct {
	BPM       float64 `json:"bpm"`
	Beat      float64 `json:"beat"`
	SyncOn    bool    `json:"sync_enabled"`
}

func (s *Server) handleTempo(c echo.Context) error {
	return c.JSON(http.StatusOK, tempoResponse{
		BPM:    s.h.Tempo.GetTempo(),
		Beat:   s.h.Tempo.GetBeat(4),
		SyncOn: s.h.Tempo.IsEnabled(),
	})
}
