package router

import (
	"context"
	"strconv"
	"time"

	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/handler"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Services 路由依赖的业务逻辑
type Services struct {
	Registry *logic.RegistryLogic
	Pools    *logic.PoolLogic
	Records  *logic.RecordLogic
	Health   func(ctx context.Context) map[string]interface{} // 链健康状态，可为 nil
}

func Setup(svc Services, cfg config.ServerConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowOrigins))
	r.Use(metricsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "poolparty",
		}
		if svc.Health != nil {
			body["chain"] = svc.Health(c.Request.Context())
		}
		c.JSON(200, body)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		poolHandler := handler.NewPoolHandler(svc.Registry, svc.Pools)
		recordHandler := handler.NewRecordHandler(svc.Records)

		v1.GET("/stats", poolHandler.GetAllPoolStats)

		pools := v1.Group("/pools")
		{
			pools.POST("", poolHandler.CreatePool)
			pools.GET("", poolHandler.GetPools)
			pools.GET("/:id", poolHandler.GetPool)
			pools.GET("/:id/stats", poolHandler.GetPoolStats)

			// 参与者操作
			pools.POST("/:id/contribute", poolHandler.Contribute)
			pools.POST("/:id/contribute-tokens", poolHandler.ContributeTokens)
			pools.POST("/:id/leave", poolHandler.Leave)
			pools.POST("/:id/claim", poolHandler.Claim)
			pools.POST("/:id/claim-refund", poolHandler.ClaimRefund)

			// 管理员操作
			pools.POST("/:id/kick", poolHandler.Kick)
			pools.POST("/:id/configure", poolHandler.Configure)
			pools.POST("/:id/complete-configuration", poolHandler.CompleteConfiguration)
			pools.POST("/:id/start-review", poolHandler.StartReview)
			pools.POST("/:id/release", poolHandler.Release)
			pools.POST("/:id/claim-from-vendor", poolHandler.ClaimFromVendor)
			pools.POST("/:id/refund", poolHandler.Refund)
			pools.POST("/:id/sync-asset", poolHandler.SyncAsset)

			pools.GET("/:id/participants", poolHandler.GetParticipants)
			pools.GET("/:id/participants/:account", poolHandler.GetParticipant)
			pools.GET("/:id/participants/:account/due", poolHandler.GetContributionsDue)

			pools.GET("/:id/contributions", recordHandler.GetContributions)
			pools.GET("/:id/refunds", recordHandler.GetRefunds)
			pools.GET("/:id/refunds/stats", recordHandler.GetRefundStats)
			pools.GET("/:id/claims", recordHandler.GetClaims)
			pools.GET("/:id/settlements", recordHandler.GetSettlements)
			pools.GET("/:id/events", recordHandler.GetEvents)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", handler.AccountHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// metricsMiddleware 记录请求数与耗时，按路由模板聚合
func metricsMiddleware() gin.HandlerFunc {
	collector := metrics.GetCollector()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		latency := float64(time.Since(start).Microseconds()) / 1000.0
		collector.RecordAPIRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), latency)
	}
}
