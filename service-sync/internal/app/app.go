package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watch-party-sync/pkg/auth"
	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/redis"
	"watch-party-sync/service-sync/internal/handler"
	"watch-party-sync/service-sync/internal/repository"
	"watch-party-sync/service-sync/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type AppServer struct {
	config      *config.Config
	handler     *handler.RelayHandler
	relay       service.RelayService
	redisClient *redis.Client
}

// NewAppServer creates a relay server connected to the configured Redis
func NewAppServer(cfg *config.Config) *AppServer {
	redisClient, err := redis.NewClient(cfg)
	if err != nil {
		logger.Fatalf("failed to initialize Redis client: %v", err)
	}

	server, err := NewAppServerWithRedis(cfg, redisClient)
	if err != nil {
		logger.Fatalf("failed to initialize relay: %v", err)
	}
	return server
}

// NewAppServerWithRedis creates a relay server on an existing Redis client
func NewAppServerWithRedis(cfg *config.Config, redisClient *redis.Client) (*AppServer, error) {
	// rosters and cross-instance fan-out live in Redis
	sessionRepo := repository.NewSessionRepository(redisClient)

	relay, err := service.NewRelayService(sessionRepo, cfg.Sync)
	if err != nil {
		return nil, err
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret)

	return &AppServer{
		config:      cfg,
		handler:     handler.NewRelayHandler(relay, jwtManager),
		relay:       relay,
		redisClient: redisClient,
	}, nil
}

// Router builds the gin engine serving the relay
func (s *AppServer) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// cors middleware
	corsConfig := cors.Config{
		AllowOrigins: s.config.CORS.AllowedOrigins,
		AllowMethods: s.config.CORS.AllowedMethods,
		AllowHeaders: s.config.CORS.AllowedHeaders,
	}
	if len(corsConfig.AllowOrigins) == 0 || corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	s.setupRoutes(router)
	return router
}

// Serve starts the relay and blocks until it is shut down by a signal
func (s *AppServer) Serve() {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.config.Port),
		Handler: s.Router(),
	}

	sslEnabled := os.Getenv("SSL_ENABLED") == "true"
	certPath := os.Getenv("SSL_CERT_PATH")
	keyPath := os.Getenv("SSL_KEY_PATH")

	go func() {
		var err error
		if sslEnabled && certPath != "" && keyPath != "" {
			logger.Infof("Starting SSL relay on port %s", s.config.Port)
			err = server.ListenAndServeTLS(certPath, keyPath)
		} else {
			logger.Infof("Starting HTTP relay on port %s", s.config.Port)
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("relay failed to start: %v", err)
		}
	}()

	s.gracefulShutdown(server)

	logger.Info("relay shutdown complete")
}

// setupRoutes configures the server routes
func (s *AppServer) setupRoutes(router *gin.Engine) {
	// websocket endpoint for session relaying
	router.GET("/ws/sessions/:sessionID", s.handler.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.POST("/sessions/:sessionID/tokens", s.handler.IssueToken)
		api.GET("/sessions/:sessionID/participants", s.handler.GetParticipants)
		api.POST("/sessions/:sessionID/end", s.handler.EndSession)
	}

	// health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "sync"})
	})
}

// Close releases the relay and its Redis connection
func (s *AppServer) Close() {
	if err := s.relay.Close(); err != nil {
		logger.Error(err, "failed to close relay")
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
}

// gracefulShutdown waits for a signal, then stops the server and the relay
func (s *AppServer) gracefulShutdown(server *http.Server) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	<-signals

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by the server
	s.relay.Close()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error(err, "relay shutdown error")
	} else {
		logger.Info("relay graceful shutdown")
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
}
