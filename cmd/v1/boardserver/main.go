package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/assignment"
	"github.com/taskboard/core/internal/v1/auth"
	"github.com/taskboard/core/internal/v1/bus"
	"github.com/taskboard/core/internal/v1/config"
	"github.com/taskboard/core/internal/v1/conflict"
	"github.com/taskboard/core/internal/v1/gateway"
	"github.com/taskboard/core/internal/v1/health"
	"github.com/taskboard/core/internal/v1/logging"
	"github.com/taskboard/core/internal/v1/middleware"
	"github.com/taskboard/core/internal/v1/ratelimit"
	"github.com/taskboard/core/internal/v1/room"
	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/taskservice"
	"github.com/taskboard/core/internal/v1/tracing"
	"github.com/taskboard/core/internal/v1/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file is the common case in deployed environments.
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()

	if tp, err := tracing.InitTracer(ctx, "taskboard-core", os.Getenv("SERVICE_VERSION"), os.Getenv("OTEL_COLLECTOR_ADDR")); err != nil {
		logging.Warn(ctx, "tracing disabled: failed to init tracer", zap.Error(err))
	} else {
		defer func() { _ = tp.Shutdown(ctx) }()
	}

	var validator interface {
		ValidateToken(string) (*auth.CustomClaims, error)
	}
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication disabled: SKIP_AUTH=true, do not use in production")
		validator = &auth.MockValidator{}
	} else {
		if cfg.Auth0Domain != "" && cfg.Auth0Audience != "" {
			v, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
			if err != nil {
				logging.Fatal(ctx, "failed to build auth validator", zap.Error(err))
			}
			validator = v
		} else {
			validator = &auth.MockValidator{}
		}
	}

	var busSvc *bus.Service
	if cfg.RedisEnabled {
		busSvc, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = busSvc.Close() }()
	}

	var st store.Store
	if cfg.PersistenceDriver == "postgres" {
		pool, err := store.OpenPool(ctx, cfg.PostgresURL)
		if err != nil {
			logging.Fatal(ctx, "failed to open postgres pool", zap.Error(err))
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
	} else {
		st = store.NewMemory()
	}

	instanceID := uuid.NewString()
	router := room.New(busSvc, instanceID)
	defer router.Shutdown()

	var sink activity.Sink = activity.NoopSink{}
	if cfg.ActivitySinkURL != "" {
		sink = activity.NewHTTPSink(cfg.ActivitySinkURL, 5*time.Second)
	}
	activitySvc := activity.NewService(cfg.ActivityRingSize, router, sink)

	assignmentEng := assignment.New(st)
	conflictCtrl := conflict.New(router, activitySvc)
	taskSvc := taskservice.New(st, router, conflictCtrl, assignmentEng, activitySvc)
	conflictCtrl.SetUpdater(taskSvc)

	dispatcher := gateway.New(taskSvc, conflictCtrl, router, activitySvc, st)

	var rl *ratelimit.RateLimiter
	rl, err = ratelimit.NewRateLimiter(cfg, busSvc.Client(), validator)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	hub := transport.NewHub(dispatcher, validator, auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}), cfg.OutboundQueueDepth, rl)
	defer hub.Shutdown()

	healthHandler := health.NewHandler(busSvc)

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.CorrelationID(), otelgin.Middleware("taskboard-core"))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", middleware.HeaderXCorrelationID)
	engine.Use(cors.New(corsCfg))

	if rl != nil {
		engine.Use(rl.GlobalMiddleware())
	}

	engine.GET("/ws", hub.ServeWs)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/health/live", healthHandler.Liveness)
	engine.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}

	go func() {
		logging.Info(ctx, "boardserver starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
}
