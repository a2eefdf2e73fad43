package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/USA-RedDragon/divi-gateway/internal/cache"
	"github.com/USA-RedDragon/divi-gateway/internal/config"
	"github.com/USA-RedDragon/divi-gateway/internal/envelope"
	"github.com/USA-RedDragon/divi-gateway/internal/metrics"
	"github.com/USA-RedDragon/divi-gateway/internal/rpc"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sloggin "github.com/samber/slog-gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func applyMiddleware(r *gin.Engine, config *config.Config, otelComponent string, rpcClient *rpc.Client, peerCache *cache.Single[envelope.Response], serverMetrics *metrics.Metrics) {
	// Panics answer with the same envelope as any other unknown failure.
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		slog.Error("Panic serving request", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope.Normalize(rpc.Outcome{Kind: rpc.KindUnknown}))
	}))

	r.TrustedPlatform = "X-Real-IP"

	// CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "authorization")
	corsConfig.AllowCredentials = true
	corsConfig.AllowWildcard = true
	if len(config.HTTP.CORSHosts) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowOrigins = config.HTTP.CORSHosts
	r.Use(cors.New(corsConfig))

	err := r.SetTrustedProxies(config.HTTP.TrustedProxies)
	if err != nil {
		slog.Error("Failed to set trusted proxies", "error", err.Error())
	}

	r.Use(requestIDMiddleware())
	r.Use(rpcClientMiddleware(rpcClient))
	r.Use(peerCacheMiddleware(peerCache))
	r.Use(metricsMiddleware(serverMetrics))
	r.Use(configMiddleware(config))

	if config.HTTP.Tracing.Enabled {
		r.Use(otelgin.Middleware(otelComponent))
		r.Use(tracingProvider(config))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		WithSpanID:        config.HTTP.Tracing.Enabled,
		WithTraceID:       config.HTTP.Tracing.Enabled,
		DefaultLevel:      slog.LevelInfo,
		ClientErrorLevel:  slog.LevelWarn,
		ServerErrorLevel:  slog.LevelError,
		WithRequestHeader: false,
	}))

	// Throttling runs inside the request logger so rejected requests still
	// show up in the logs. Only the public API is throttled.
	if config.HTTP.RateLimit.Enabled && otelComponent == "api" {
		r.Use(rateLimitMiddleware(config.HTTP.RateLimit, serverMetrics))
	}
}

// requestIDMiddleware tags every request with an id, honoring one the
// caller already set, so gateway log lines can be matched to client
// reports.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		sloggin.AddCustomAttributes(c, slog.String("request_id", id))
		c.Next()
	}
}

func configMiddleware(config *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("config", config)
		c.Next()
	}
}

func tracingProvider(config *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.HTTP.Tracing.OTLPEndpoint != "" {
			ctx := c.Request.Context()
			span := trace.SpanFromContext(ctx)
			if span.IsRecording() {
				span.SetAttributes(
					attribute.String("http.method", c.Request.Method),
					attribute.String("http.path", c.Request.URL.Path),
				)
			}
		}
		c.Next()
	}
}

func rpcClientMiddleware(rpcClient *rpc.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("rpcClient", rpcClient)
		c.Next()
	}
}

func peerCacheMiddleware(peerCache *cache.Single[envelope.Response]) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("peerCache", peerCache)
		c.Next()
	}
}

func metricsMiddleware(serverMetrics *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("metrics", serverMetrics)
		c.Next()
	}
}
