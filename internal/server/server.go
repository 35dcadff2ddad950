// Package server exposes the HTTP API: schedule CRUD, month and day views,
// the running set, health and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronlens/internal/colors"
	"cronlens/internal/config"
	"cronlens/internal/eventbus"
	"cronlens/internal/services/refresh"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

type Server struct {
	set     config.HTTPSettings
	log     logx.Logger
	store   storage.Store
	refresh *refresh.Service
	colors  *colors.Allocator
	bus     eventbus.Bus
	metrics *Metrics

	srv   *http.Server
	unsub func()
}

func New(set config.HTTPSettings, store storage.Store, rf *refresh.Service, alloc *colors.Allocator, bus eventbus.Bus, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if alloc == nil {
		alloc = colors.NewAllocator()
	}
	s := &Server{
		set:     set,
		log:     log,
		store:   store,
		refresh: rf,
		colors:  alloc,
		bus:     bus,
		metrics: NewMetrics(),
	}
	s.srv = &http.Server{
		Addr:         set.Addr,
		Handler:      s.routes(),
		ReadTimeout:  set.ReadTimeout,
		WriteTimeout: set.WriteTimeout,
		IdleTimeout:  set.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.log, s.metrics))
	r.Use(rateLimit(s.set.RatePerSec, s.set.Burst, s.metrics))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/schedules", s.handleListSchedules)
		r.Post("/schedules", s.handleCreateSchedule)
		r.Put("/schedules/{id}", s.handleUpdateSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
		r.Post("/schedules/validate", s.handleValidateSchedule)

		r.Get("/month", s.handleMonth)
		r.Get("/day", s.handleDay)
		r.Get("/running", s.handleRunning)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins serving in the background. Listen errors other than a clean
// shutdown are reported through errCh once.
func (s *Server) Start(errCh chan<- error) {
	// Keep the running gauge in sync off the event bus.
	if s.bus != nil {
		events, unsub := s.bus.Subscribe(16)
		s.unsub = unsub
		go func() {
			for ev := range events {
				if ev.Type != eventbus.TypeRunningChanged {
					continue
				}
				if ids, ok := ev.Data.([]string); ok {
					s.metrics.RunningSchedules.Set(float64(len(ids)))
				}
			}
		}()
	}

	go func() {
		s.log.Info("http server listening", logx.String("addr", s.set.Addr))
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			if errCh != nil {
				errCh <- err
			}
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
