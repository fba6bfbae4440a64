package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const healthProbeTimeout = 2 * time.Second

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck probes the database and the cache backend. The cache probe is
// a full round trip so a write-broken backend is reported, not just an
// unreachable one.
func (s *Server) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	components := gin.H{
		"database": s.checkDatabase(ctx),
		"cache":    s.checkCache(ctx),
	}

	status := http.StatusOK
	overall := "healthy"
	for _, component := range components {
		if component.(componentHealth).Status != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"timestamp":  s.clock.Now(),
	})
}

func (s *Server) checkDatabase(ctx context.Context) componentHealth {
	sqlDB, err := s.db.DB()
	if err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}
	return componentHealth{Status: "healthy"}
}

func (s *Server) checkCache(ctx context.Context) componentHealth {
	key := "pulse:health:" + uuid.NewString()
	want := []byte("ok")

	if err := s.store.Set(ctx, key, want, healthProbeTimeout); err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}
	got, err := s.store.Get(ctx, key)
	if err != nil {
		return componentHealth{Status: "unhealthy", Error: err.Error()}
	}
	if !bytes.Equal(got, want) {
		return componentHealth{Status: "unhealthy", Error: "cache round trip mismatch"}
	}
	_ = s.store.Delete(ctx, key)
	return componentHealth{Status: "healthy"}
}
