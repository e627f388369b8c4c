package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/ais-anomaly-go/internal/config"
	"github.com/jengzang/ais-anomaly-go/internal/handler"
	"github.com/jengzang/ais-anomaly-go/internal/middleware"
	"github.com/jengzang/ais-anomaly-go/internal/models"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, detections *handler.DetectionHandler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"message":       "AIS anomaly detection API is running",
			"anomaly_types": models.AnomalyTypes(),
		})
	})

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Server.JWTSecret))
	{
		api.GET("/vessel-classes", detections.ListVesselClasses)

		// 检测接口
		heavy := api.Group("")
		heavy.Use(
			middleware.RateLimit(cfg.Server.RateLimit, time.Minute),
			middleware.BodyLimit(cfg.Server.MaxBodyMB<<20),
		)
		{
			heavy.POST("/detections/overspeed", detections.DetectOverspeed)
			heavy.POST("/detections/speed-abnormality", detections.DetectSpeedAbnormality)
			heavy.POST("/trajectories", detections.Segment)
		}
	}

	return r
}
