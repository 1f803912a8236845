package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/config"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/monitoring"
	"github.com/waypoint-labs/roadwatch/internal/resilience"
	"github.com/waypoint-labs/roadwatch/internal/store"
	"github.com/waypoint-labs/roadwatch/pkg/detector"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the road safety REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat, db, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		det, err := initDetector(cfg.Detector)
		if err != nil {
			return err
		}

		srv := newServer(cat, db, det, cfg.Detector.MinConfidence)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// initDetector builds the damage classifier named by the config. Serve
// starts without one; the detect endpoint then answers 503.
func initDetector(dcfg config.DetectorConfig) (detector.Client, error) {
	switch dcfg.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if dcfg.Key == "" {
			zap.L().Warn("photo detection disabled: no detector key configured (ROADWATCH_DETECTOR_KEY)")
			return nil, nil
		}
		var opts []detector.AnthropicOption
		if dcfg.Model != "" {
			opts = append(opts, detector.WithModel(dcfg.Model))
		}
		if dcfg.MaxTokens > 0 {
			opts = append(opts, detector.WithMaxTokens(dcfg.MaxTokens))
		}
		return detector.NewAnthropicClient(dcfg.Key, opts...), nil
	case "http":
		if dcfg.BaseURL == "" {
			return nil, eris.New("http detector requires a base URL (ROADWATCH_DETECTOR_BASE_URL)")
		}
		breaker := resilience.FromCircuitConfig(dcfg.BreakerThreshold, dcfg.BreakerResetSecs)
		return detector.NewHTTPClient(dcfg.BaseURL, detector.WithBreakerConfig(breaker)), nil
	default:
		return nil, eris.Errorf("unsupported detector provider: %s", dcfg.Provider)
	}
}

// server carries the shared state behind the HTTP handlers.
type server struct {
	cat       *catalog.Catalog
	db        store.Store
	collector *monitoring.Collector
	det       detector.Client
	minDetect float64
	log       *zap.Logger
}

func newServer(cat *catalog.Catalog, db store.Store, det detector.Client, minDetect float64) *server {
	return &server{
		cat:       cat,
		db:        db,
		collector: monitoring.NewCollector(cat, db),
		det:       det,
		minDetect: minDetect,
		log:       zap.L().With(zap.String("component", "api")),
	}
}

func (s *server) routes(scfg config.ServerConfig) *chi.Mux {
	r := chi.NewMux()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: scfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))
	if scfg.RateLimitRPS > 0 {
		r.Use(rateLimit(rate.Limit(scfg.RateLimitRPS), scfg.RateLimitBurst, 5*time.Minute))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)

		api.Route("/cameras", func(cr chi.Router) {
			cr.Get("/", s.handleCameraList)
			cr.Get("/nearby", s.handleCameraNearby)
			cr.Get("/count", s.handleCameraCount)
			cr.Post("/", s.handleCameraCreate)
			cr.Delete("/{id}", s.handleCameraDelete)
		})

		api.Route("/speed-limits", func(sr chi.Router) {
			sr.Get("/nearby", s.handleSpeedLimitNearby)
			sr.Get("/count", s.handleSpeedLimitCount)
			sr.Post("/", s.handleSpeedLimitCreate)
		})

		api.Route("/hazards", func(hr chi.Router) {
			hr.Get("/nearby", s.handleHazardNearby)
			hr.Post("/", s.handleHazardCreate)
			hr.Post("/detect", s.handleHazardDetect)
			hr.Get("/roads/nearby", s.handleHazardRoadNearby)
		})

		api.Route("/zones", func(zr chi.Router) {
			zr.Get("/schools/nearby", s.handleZoneNearby(model.ZoneSchool))
			zr.Post("/schools", s.handleZoneCreate(model.ZoneSchool))
			zr.Delete("/schools/{id}", s.handleZoneDelete)
			zr.Get("/hospitals/nearby", s.handleZoneNearby(model.ZoneHospital))
			zr.Post("/hospitals", s.handleZoneCreate(model.ZoneHospital))
			zr.Delete("/hospitals/{id}", s.handleZoneDelete)
		})

		api.Post("/reports", s.handleReportCreate)

		api.Route("/navigation", func(nr chi.Router) {
			nr.Get("/nearby", s.handleNavigationNearby)
			nr.Post("/route", s.handleNavigationRoute)
		})
	})

	return r
}
