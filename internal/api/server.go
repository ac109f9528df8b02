package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"vaulttrust/internal/exchange"
	"vaulttrust/internal/logger"
	"vaulttrust/internal/metrics"
	"vaulttrust/internal/notify"
	"vaulttrust/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	storage   storage.Storage
	exchanges *exchange.Service
	publisher notify.Publisher
	metrics   *metrics.Metrics
}

func NewServer(storage storage.Storage, publisher notify.Publisher, m *metrics.Metrics) *Server {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Server{
		storage:   storage,
		exchanges: exchange.NewService(storage, publisher),
		publisher: publisher,
		metrics:   m,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), s.requestMetrics(), cors())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")

	exchanges := api.Group("/exchanges")
	exchanges.POST("/register", s.registerExchange)
	exchanges.POST("/verify", s.verifyExchange)
	exchanges.GET("", s.listExchanges)
	exchanges.GET("/:walletAddress", s.getExchange)

	submissions := api.Group("/submissions")
	submissions.GET("", s.listSubmissions)
	submissions.GET("/:id", s.getSubmission)
	submissions.PATCH("/:id/verification", s.verifySubmission)

	proofs := api.Group("/proofs")
	proofs.GET("", s.listProofs)
	proofs.GET("/:id", s.getProof)
	proofs.POST("", s.createProof)
	proofs.PATCH("/:id/status", s.updateProofStatus)

	api.GET("/audit-logs", s.listAuditLogs)

	return router
}

// ListenAndServe blocks until ctx is done, then drains in-flight requests for
// at most shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, address string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api: listening", zap.String("address", address))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("api: shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("api: shutting down... done")
	return nil
}

func (s *Server) health(c *gin.Context) {
	if err := s.storage.Ping(c.Request.Context()); err != nil {
		logger.Error("health: database ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func internalError(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	abortWithError(c, http.StatusInternalServerError, message)
}
