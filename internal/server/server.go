package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cicconee/silam-pollen/internal/admin"
	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/flow"
	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/pool"
	"github.com/cicconee/silam-pollen/internal/zone"
)

// Flow and login endpoints are limited per IP since flow submits can
// probe SILAM and logins hash passwords.
const (
	flowRateLimit  = 30
	flowRateWindow = time.Minute
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 7 * time.Second

type Server struct {
	Router      *chi.Mux
	Addr        string
	Interval    time.Duration
	WorkerCount int
	Logger      *slog.Logger
	Admins      *admin.Service
	Zones       *zone.Registry
	Entries     *entry.Store
	Flows       *flow.Manager
	Devices     *forecast.Service

	handler *Handler
	worker  *worker
	pool    *pool.Pool
}

func (s *Server) addr() string {
	if s.Addr == "" {
		s.Addr = ":8080"
	}

	return s.Addr
}

func (s *Server) interval() time.Duration {
	if s.Interval == 0 {
		s.Interval = time.Minute
	}

	return s.Interval
}

func (s *Server) workerCount() int {
	if s.WorkerCount < 1 {
		s.WorkerCount = 2
	}

	return s.WorkerCount
}

func (s *Server) init() {
	s.handler = NewHandler(s.Logger)
	s.handler.admins = s.Admins
	s.handler.zones = s.Zones
	s.handler.entries = s.Entries
	s.handler.flows = s.Flows
	s.handler.devices = s.Devices
	s.setRoutes()

	s.pool = pool.New(s.workerCount(), 64)
	s.worker = newWorker(s.Devices, s.pool, s.interval(), s.Logger)
}

func (s *Server) setRoutes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(RequestLogger(s.Logger))
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/", s.handler.HelloWorld())
	s.Router.Handle("/metrics", promhttp.Handler())

	adminValidater := AdminValidater{
		admins: s.Admins,
		logger: s.Logger,
	}

	s.Router.Get("/zones", s.handler.HandleGetZones())
	s.Router.Put("/zones/{id}", adminValidater.Validate(s.handler.HandlePutZone()))

	s.Router.Group(func(r chi.Router) {
		r.Use(RateLimit(s.Logger, flowRateLimit, flowRateWindow))

		r.Post("/admins/login", s.handler.HandlePostLogin())
		r.Post("/admins/signup", s.handler.HandlePostSignup())

		r.Post("/flows", s.handler.HandleStartFlow())
		r.Post("/flows/{flowID}", s.handler.HandleSubmitFlow())
		r.Post("/entries/{entryID}/options", s.handler.HandleStartOptions())
		r.Post("/options/{flowID}", s.handler.HandleSubmitOptions())
	})

	s.Router.Get("/entries", s.handler.HandleGetEntries())
	s.Router.Get("/entries/{entryID}", s.handler.HandleGetEntry())
	s.Router.Delete("/entries/{entryID}", adminValidater.Validate(s.handler.HandleDeleteEntry()))
	s.Router.Get("/entries/{entryID}/forecast", s.handler.HandleGetForecast())
	s.Router.Post("/entries/{entryID}/refresh", s.handler.HandleRefresh())
}

func (s *Server) validate() error {
	if s.Router == nil {
		return errors.New("router is nil")
	}

	if s.Logger == nil {
		return errors.New("logger is nil")
	}

	if s.Admins == nil {
		return errors.New("admins is nil")
	}

	if s.Zones == nil {
		return errors.New("zones is nil")
	}

	if s.Entries == nil {
		return errors.New("entries is nil")
	}

	if s.Flows == nil {
		return errors.New("flows is nil")
	}

	if s.Devices == nil {
		return errors.New("devices is nil")
	}

	return nil
}

// Handler returns the routed handler without starting the worker.
func (s *Server) Handler() (http.Handler, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	s.init()
	return s.Router, nil
}

// Start serves HTTP and runs the refresh worker until ctx is done, then
// shuts both down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Handler(); err != nil {
		return err
	}

	s.pool.Start()
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.worker.start(workerCtx)
	}()

	defer func() {
		stopWorker()
		<-workerDone
		s.pool.Stop()
	}()

	httpServer := &http.Server{
		Addr:              s.addr(),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	startCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "addr", s.addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	// Wait for either a shutdown or an error if the server cannot start.
	select {
	case err := <-startCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.Logger.Info("shutting down http server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
