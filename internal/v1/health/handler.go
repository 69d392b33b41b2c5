package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/taskboard/core/internal/v1/bus"
	"github.com/taskboard/core/internal/v1/logging"
	"go.uber.org/zap"
)

// UpstreamChecker checks the health of an optional external collaborator
// exposing the standard gRPC health-checking protocol (e.g. a credential
// verifier or persistence sidecar deployed as its own service).
type UpstreamChecker interface {
	Check(ctx context.Context, addr string) string
}

// DefaultUpstreamChecker is the default implementation of UpstreamChecker.
type DefaultUpstreamChecker struct{}

// Check verifies gRPC connectivity using the standard health-check protocol.
func (c *DefaultUpstreamChecker) Check(ctx context.Context, addr string) string {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logging.Error(ctx, "failed to connect to upstream dependency for health check", zap.Error(err), zap.String("addr", addr))
		return "unhealthy"
	}
	defer func() { _ = conn.Close() }()

	healthClient := healthpb.NewHealthClient(conn)

	resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{
		Service: "", // Empty string checks overall server health
	})
	if err != nil {
		logging.Error(ctx, "upstream health check RPC failed", zap.Error(err))
		return "unhealthy"
	}

	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		logging.Warn(ctx, "upstream dependency is not serving", zap.String("status", resp.Status.String()))
		return "unhealthy"
	}

	return "healthy"
}

// Handler manages health check endpoints.
type Handler struct {
	redisService    *bus.Service
	upstreamAddr    string
	upstreamEnabled bool
	upstreamChecker UpstreamChecker
}

// NewHandler creates a new health check handler.
func NewHandler(redisService *bus.Service) *Handler {
	upstreamAddr := os.Getenv("UPSTREAM_GRPC_ADDR")
	if upstreamAddr == "" {
		upstreamAddr = "localhost:50051"
	}

	upstreamEnabled := os.Getenv("UPSTREAM_HEALTH_CHECK_ENABLED")
	enabled := upstreamEnabled != "false" // Enabled by default

	return &Handler{
		redisService:    redisService,
		upstreamAddr:    upstreamAddr,
		upstreamEnabled: enabled,
		upstreamChecker: &DefaultUpstreamChecker{},
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy.
// Returns 503 if any dependency is unhealthy.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	if h.upstreamEnabled {
		upstreamStatus := h.checkUpstream(ctx)
		checks["upstream"] = upstreamStatus
		if upstreamStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies Redis connectivity using the PING command.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// checkUpstream verifies gRPC connectivity to the optional upstream dependency.
func (h *Handler) checkUpstream(ctx context.Context) string {
	if h.upstreamChecker == nil {
		return "unhealthy"
	}
	return h.upstreamChecker.Check(ctx, h.upstreamAddr)
}

// HealthCheckResponse is a generic health check response for backward compatibility.
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
