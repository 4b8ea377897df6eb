package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"connwatch/internal/alerting"
	"connwatch/internal/cache"
	"connwatch/internal/config"
	"connwatch/internal/logger"
	"connwatch/internal/monitor"
	"connwatch/internal/monitoring"
	"connwatch/internal/storage"
)

// Server is the HTTP surface over the monitoring engine. Storage and cache are
// optional collaborators; the server degrades to in-memory behavior without
// them.
type Server struct {
	config     *config.Config
	engine     *monitor.Engine
	store      *storage.Store
	snapshots  cache.Cacher
	metrics    *monitoring.Metrics
	notifier   *alerting.Notifier
	jwtManager *JWTManager
	hub        *Hub
	log        logger.Logger

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the HTTP server. store and snapshots may be nil.
func NewServer(cfg *config.Config, engine *monitor.Engine, store *storage.Store, snapshots cache.Cacher, metrics *monitoring.Metrics, log logger.Logger) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	s := &Server{
		config:     cfg,
		engine:     engine,
		store:      store,
		snapshots:  snapshots,
		metrics:    metrics,
		jwtManager: NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Duration),
		hub:        NewHub(log),
		log:        log,
		router:     gin.New(),
	}
	s.hub.SetConnectionCallbacks(metrics.WSConnectionOpened, metrics.WSConnectionClosed)
	s.wireEngineSinks()
	s.setupRoutes()
	return s
}

// wireEngineSinks connects the engine's event hooks to the websocket hub, the
// snapshot cache and the storage collaborator.
func (s *Server) wireEngineSinks() {
	s.engine.SetMetrics(s.metrics)

	s.engine.SetSummarySink(func(summary monitor.SystemHealthSummary) {
		s.hub.BroadcastSummary(summary)
		if s.snapshots != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.snapshots.Set(ctx, cache.KeySummary, summary, 5*time.Minute); err != nil {
				s.log.Debug("summary snapshot not cached", "error", err.Error())
			}
		}
	})

	s.engine.SetAlertSink(func(alert monitor.MonitoringAlert) {
		s.hub.BroadcastAlert(alert)
		if s.notifier != nil {
			_ = s.notifier.Dispatch(alert)
		}
		if s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.store.InsertAlert(ctx, alert); err != nil {
				s.log.Error("failed to persist alert", "alert_id", alert.ID, "error", err.Error())
			}
		}
	})

	if s.store != nil {
		s.engine.SetCallLogSink(func(entry monitor.APICallLog) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.store.InsertCallLog(ctx, entry); err != nil {
				s.log.Error("failed to persist call log", "log_id", entry.ID, "error", err.Error())
			}
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(requestLogger(s.log))
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	if s.config.RateLimit.Enabled {
		s.router.Use(rateLimitMiddleware(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst))
	}
	s.router.Use(s.metrics.MetricsMiddleware())

	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/ws", s.hub.ServeWS)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health/summary", s.handleHealthSummary)
		v1.GET("/connectors", s.handleListConnectors)
		v1.GET("/connectors/:id", s.handleGetConnector)
		v1.GET("/connectors/:id/calls", s.handleConnectorCalls)
		v1.GET("/sources/:id/scorecard", s.handleGetScorecard)
		v1.GET("/alerts", s.handleListAlerts)
		v1.GET("/alert-rules", s.handleGetAlertRules)

		protected := v1.Group("")
		protected.Use(s.jwtManager.AuthMiddleware())
		{
			protected.POST("/connectors", s.handleRegisterConnector)
			protected.POST("/calls", s.handleRecordCall)
			protected.POST("/samples", s.handleRecordSample)
			protected.POST("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)
			protected.POST("/alerts/:id/resolve", s.handleResolveAlert)
			protected.PUT("/alert-rules", s.handleUpdateAlertRules)
		}
	}
}

// SetNotifier attaches an outbound notification dispatcher for fired alerts.
func (s *Server) SetNotifier(n *alerting.Notifier) {
	s.notifier = n
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	s.log.Info("API server listening",
		"host", s.config.Server.Host, "port", s.config.Server.Port)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("API server stopped")
	return nil
}
