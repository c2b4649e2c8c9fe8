// Package httpapi реализует REST-интерфейс леджера аукционов на gin.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

type routerConfig struct {
	logger         *log.Entry
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	clock          func() time.Time
	extra          map[string]http.Handler
}

// RouterOption настраивает NewRouter.
type RouterOption func(*routerConfig)

// WithRouterLogger задаёт логгер middleware и обработчиков.
func WithRouterLogger(logger *log.Entry) RouterOption {
	return func(cfg *routerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithIdempotency включает обработку Idempotency-Key на POST-эндпоинтах.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) RouterOption {
	return func(cfg *routerConfig) {
		cfg.idempotency = repo
		cfg.idempotencyTTL = ttl
	}
}

// WithIdempotencyClock подменяет часы для расчёта TTL ключей.
func WithIdempotencyClock(clock func() time.Time) RouterOption {
	return func(cfg *routerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithGetHandler монтирует произвольный http.Handler на GET path (health-пробы).
func WithGetHandler(path string, handler http.Handler) RouterOption {
	return func(cfg *routerConfig) {
		if handler != nil {
			cfg.extra[path] = handler
		}
	}
}

// NewRouter собирает gin.Engine со всеми маршрутами леджера.
func NewRouter(service LedgerService, opts ...RouterOption) *gin.Engine {
	cfg := routerConfig{
		logger: log.NewEntry(log.StandardLogger()),
		clock:  time.Now,
		extra:  make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.WithField("component", "http-api")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	handler := NewHandler(service, cfg.logger)
	idem := idempotency(cfg.idempotency, cfg.idempotencyTTL, cfg.clock, logger)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", idem, handler.CreateAuction)
		auctions.GET("", handler.ListAuctions)
	}

	lots := router.Group("/lots")
	{
		lots.POST("", idem, handler.CreateLot)
		lots.GET("", handler.ListLots)
		lots.GET("/recommendation", handler.RecommendStartingBid)
	}

	bids := router.Group("/bids")
	{
		bids.POST("", idem, handler.CreateBid)
		bids.GET("", handler.ListBids)
	}

	for path, h := range cfg.extra {
		router.GET(path, gin.WrapH(h))
	}

	return router
}
