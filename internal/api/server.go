package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/health"
)

// ServerOption настраивает HTTP-сервер.
type ServerOption func(*Server)

// WithServerLogger задаёт логгер сервера.
func WithServerLogger(logger *log.Entry) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthHandler подключает обработчики /health, /healthz и /readyz.
func WithHealthHandler(handler *health.Handler) ServerOption {
	return func(s *Server) {
		s.health = handler
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key на
// создающих эндпоинтах.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.idempotencyRepo = repo
		s.idempotencyTTL = ttl
	}
}

// Server — HTTP-обёртка над сервисами. Каждый бинарь собирает свой
// набор маршрутов: inventory и billing живут в разных процессах.
type Server struct {
	engine *gin.Engine
	logger *log.Entry
	health *health.Handler

	idempotencyRepo domain.IdempotencyRepository
	idempotencyTTL  time.Duration
}

// NewServer создаёт сервер с базовыми маршрутами (health, metrics).
func NewServer(options ...ServerOption) *Server {
	s := &Server{
		logger:         log.WithField("component", "http-server"),
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, option := range options {
		option(s)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/healthz", gin.WrapF(health.LivenessHandler))
	if s.health != nil {
		s.engine.GET("/health", gin.WrapH(s.health))
		s.engine.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))
	}

	return s
}

// MountInventory регистрирует маршруты inventory-сервиса под /api/v1.
func (s *Server) MountInventory(handlers *InventoryHandlers) {
	var idem gin.HandlerFunc
	if s.idempotencyRepo != nil {
		idem = IdempotencyMiddleware(s.idempotencyRepo, s.idempotencyTTL, s.logger)
	}
	handlers.Register(s.engine.Group("/api/v1"), idem)
}

// MountBilling регистрирует маршруты billing-сервиса под /api/v1.
func (s *Server) MountBilling(handlers *BillingHandlers) {
	handlers.Register(s.engine.Group("/api/v1"))
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run блокирующе слушает адрес до ошибки сервера.
func (s *Server) Run(addr string) error {
	s.logger.WithField("addr", addr).Info("http server listening")
	return s.engine.Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
