package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/locality"
	"github.com/clinic/clinic/internal/domain/rbac"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/kv"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/session"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const redisKeyPrefix = "clinic:"

// openStore connects to Redis when REDIS_URL is set and otherwise falls back
// to an in-process LRU, which is only coherent for a single replica.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (kv.Store, func(), error) {
	if cfg.RedisURL == "" {
		maxTTL := cfg.SessionTTL
		if cfg.PermissionCacheTTL > maxTTL {
			maxTTL = cfg.PermissionCacheTTL
		}
		logger.Warn().Msg("REDIS_URL not set, sessions and permission cache are kept in process")
		return kv.NewMemory(cfg.LocalCacheSize, maxTTL), func() {}, nil
	}
	r, err := kv.NewRedis(ctx, cfg.RedisURL, redisKeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("open redis: %w", err)
	}
	logger.Info().Msg("connected to redis")
	return r, func() { _ = r.Close() }, nil
}

// access bundles the two subsystems built on one pool and store.
type access struct {
	rbac     *rbac.Service
	resolver *rbac.Resolver
	locality *locality.Service
	selector *locality.Selector
}

func newAccess(pool *pgxpool.Pool, store kv.Store, cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) *access {
	metrics := rbac.NewMetrics(reg)
	cache := rbac.NewPermissionCache(store, cfg.PermissionCacheTTL, logger, metrics)

	assignments := locality.NewAssignmentRepo(pool)
	return &access{
		rbac: rbac.NewService(
			rbac.NewRoleRepo(pool),
			rbac.NewComponentRepo(pool),
			rbac.NewOperationRepo(pool),
			rbac.NewPermissionRepo(pool),
			rbac.NewAssignmentRepo(pool),
			cache,
			logger,
		),
		resolver: rbac.NewResolver(rbac.NewGrantReader(pool), cache, metrics, logger),
		locality: locality.NewService(
			locality.NewOrganizationRepo(pool),
			locality.NewDepartmentRepo(pool),
			locality.NewRoomRepo(pool),
			locality.NewLocalRepo(pool),
			assignments,
			logger,
		),
		selector: locality.NewSelector(assignments, session.NewSelections(store, cfg.SessionTTL), logger),
	}
}

func authMiddleware(cfg *config.Config, logger zerolog.Logger) echo.MiddlewareFunc {
	a := auth.NewAuthenticator(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}, logger)
	if cfg.IsDev() {
		return a.DevMiddleware()
	}
	return a.Middleware()
}

// rateLimit is a no-op when RATE_LIMIT_RPS is zero.
func rateLimit(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.RateLimitRPS <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	return middleware.RateLimit(rl)
}

// newServer wires the HTTP surface. Health and metrics are public; everything
// under /api/v1 requires an identity and carries a session.
func newServer(cfg *config.Config, pool *pgxpool.Pool, store kv.Store, reg *prometheus.Registry, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := telemetry.NewHTTPMetrics(reg)
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, session.HeaderName},
		AllowCredentials: true,
	}))
	e.Use(httpMetrics.Middleware())

	a := newAccess(pool, store, cfg, reg, logger)

	api := e.Group("/api/v1",
		echomw.BodyLimit(cfg.BodyLimit),
		middleware.RequestTimeout(cfg.RequestTimeout),
		authMiddleware(cfg, logger),
		rateLimit(cfg),
		session.Middleware(session.Config{Secure: cfg.CookieSecure, TTL: cfg.SessionTTL}),
		middleware.Audit(logger, middleware.NewAuditStorePG(pool)),
	)
	rbac.NewHandler(a.rbac, a.resolver).RegisterRoutes(api)
	locality.NewHandler(a.locality, a.selector, a.resolver).RegisterRoutes(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Pinger{"cache": store}))
	e.GET("/metrics", telemetry.Handler(reg))
	return e
}
