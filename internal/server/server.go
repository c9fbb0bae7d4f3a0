package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/mbergstrom/chatrelay/internal/blobstore"
	"github.com/mbergstrom/chatrelay/internal/config"
	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/engine"
)

// Server exposes the websocket endpoint, the channel-create hook, blob
// serving and the observability routes over echo.
type Server struct {
	echo        *echo.Echo
	config      *config.Config
	resolver    domain.ClaimsResolver
	coordinator *engine.Coordinator
	store       domain.Store
	blobs       *blobstore.RedisStore

	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time

	globalLimiter  *GlobalConnectionLimiter
	ipLimiter      *IPConnectionLimiter
	upgradeLimiter *rate.Limiter
}

func NewServer(
	cfg *config.Config,
	resolver domain.ClaimsResolver,
	coordinator *engine.Coordinator,
	store domain.Store,
	blobs *blobstore.RedisStore,
	pool *pgxpool.Pool,
	rdb *redis.Client,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:           e,
		config:         cfg,
		resolver:       resolver,
		coordinator:    coordinator,
		store:          store,
		blobs:          blobs,
		pool:           pool,
		rdb:            rdb,
		startTime:      time.Now(),
		globalLimiter:  NewGlobalConnectionLimiter(int64(cfg.MaxConnections)),
		ipLimiter:      NewIPConnectionLimiter(cfg.MaxConnectionsPerIP),
		upgradeLimiter: newUpgradeLimiter(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
