package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/api/handlers"
	"storefront/internal/api/middleware"
	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/metrics"

	"github.com/gin-gonic/gin"
)

// CatalogService adds products and registers sites.
type CatalogService interface {
	handlers.ProductUpserter
	handlers.SiteRegistrar
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Ingester  handlers.Ingester
	Catalog   CatalogService
	Pages     handlers.PageFetcher
	Recorder  handlers.EventRecorder
	Reporter  handlers.SiteReporter
	Manifests handlers.ManifestRenderer
	Metrics   *metrics.Metrics
	Ping      func(ctx context.Context) error
}

type Server struct {
	config *config.Config
	logger *logger.Logger
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, deps Deps) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins()))
	router.Use(middleware.Metrics(deps.Metrics))

	syncHandler := handlers.NewSyncHandler(deps.Ingester, logger)
	productHandler := handlers.NewProductHandler(deps.Catalog, deps.Pages, logger)
	eventHandler := handlers.NewEventHandler(deps.Recorder)
	siteHandler := handlers.NewSiteHandler(deps.Catalog, deps.Reporter)
	manifestHandler := handlers.NewManifestHandler(deps.Manifests)
	healthHandler := handlers.NewHealthHandler(deps.Ping)

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	router.GET("/.well-known/agents.json", manifestHandler.Agents)

	api := router.Group("/api")
	{
		api.POST("/bulk-sync", syncHandler.BulkSync)
		api.POST("/register-site", siteHandler.Register)

		products := api.Group("/products")
		{
			products.POST("/add", productHandler.Add)
			products.POST("/extract", productHandler.Extract)
		}

		api.POST("/metrics/record", eventHandler.Record)
		api.GET("/manifest/:siteId", manifestHandler.Get)
		api.GET("/site-status/:siteId", siteHandler.Status)
		api.GET("/analytics/:siteId", siteHandler.Analytics)
	}

	return &Server{
		config: cfg,
		logger: logger,
		router: router,
		// Bulk syncs run inside the request, so writes get a long deadline.
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving requests. It returns nil after Stop.
func (s *Server) Start() error {
	s.logger.Info("Starting server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}
