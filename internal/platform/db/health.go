package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler reports pool statistics and returns 503 when the database
// does not answer a ping.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}

// Pinger is anything that can confirm the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceHealth is the body of the service health endpoint.
type ServiceHealth struct {
	ServiceVersion string    `json:"serviceVersion"`
	Environment    string    `json:"environment"`
	DBStatus       string    `json:"dbStatus"`
	Timestamp      time.Time `json:"timestamp"`
}

// CheckStatus returns "UP", or "DOWN: <reason>" when the ping fails. A nil
// pinger means the service runs without an external database.
func CheckStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "UP"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "DOWN: " + err.Error()
	}
	return "UP"
}

// ServiceHealthHandler always answers 200; database trouble is reported in
// the dbStatus field.
func ServiceHealthHandler(p Pinger, version, environment string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, ServiceHealth{
			ServiceVersion: version,
			Environment:    environment,
			DBStatus:       CheckStatus(c.Request().Context(), p),
			Timestamp:      time.Now().UTC(),
		})
	}
}
