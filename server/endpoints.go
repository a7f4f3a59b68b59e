package server

import (
	"net/http"
	goruntime "runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/faultkit/runtime"
	"github.com/skillsenselab/faultkit/version"
)

// Healthz returns a handler reporting the aggregate health classification.
// Healthy and degraded report 200; unhealthy reports 503 so load balancers
// pull the instance only when it is truly down.
func Healthz(rt *runtime.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := rt.GetStatus()

		httpStatus := http.StatusOK
		if status.Health == runtime.HealthUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":    status.Health,
			"name":      status.Name,
			"version":   version.Get().String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// StatusEndpoint returns a handler serving the full runtime snapshot:
// per-breaker state and counters, bulkhead occupancy, checker health and
// uptime, rate limiter admission counts.
func StatusEndpoint(rt *runtime.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, rt.GetStatus())
	}
}

// Metrics returns a handler reporting process stats alongside the most
// recent periodic snapshot.
func Metrics(rt *runtime.Runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m goruntime.MemStats
		goruntime.ReadMemStats(&m)

		body := gin.H{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"goroutines": goruntime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       m.Alloc / 1024 / 1024,
				"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
				"sys_mb":         m.Sys / 1024 / 1024,
				"gc_runs":        m.NumGC,
			},
		}
		if snap, ok := rt.LastSnapshot(); ok {
			body["snapshot"] = snap
		}
		c.JSON(http.StatusOK, body)
	}
}
