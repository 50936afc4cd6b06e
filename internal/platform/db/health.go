package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool section of the health response.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is a dependency reported by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the body returned by HealthHandler.
type HealthReport struct {
	Status       string            `json:"status"`
	Pool         *PoolStats        `json:"pool,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

// CheckHealth pings the database and each named dependency.
func CheckHealth(ctx context.Context, deps map[string]Pinger) HealthReport {
	report := HealthReport{Status: "healthy", Dependencies: make(map[string]string, len(deps))}
	for name, p := range deps {
		if err := p.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Dependencies[name] = err.Error()
			continue
		}
		report.Dependencies[name] = "ok"
	}
	return report
}

// HealthHandler serves the database and cache health check.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		deps := map[string]Pinger{"postgres": pool}
		for name, p := range extra {
			deps[name] = p
		}

		report := CheckHealth(ctx, deps)
		report.Pool = GetPoolStats(pool)
		if report.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
