package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter 创建 gin 引擎并注册中间件与路由
func NewRouter(logger *zap.Logger, h *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), CORS())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 车辆
		api.POST("/vehicles", h.CreateVehicle)
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:id", h.GetVehicle)
		api.PUT("/vehicles/:id", h.UpdateVehicle)
		api.DELETE("/vehicles/:id", h.DeleteVehicle)
		api.POST("/vehicles/:id/recalculate", h.RecalculateVehicle)

		// 能耗记录
		api.POST("/energy", h.CreateEnergyLog)
		api.GET("/energy", h.ListEnergyLogs)
		api.GET("/energy/quick", h.QuickAddEnergyLog)
		api.GET("/energy/:id", h.GetEnergyLog)
		api.PUT("/energy/:id", h.UpdateEnergyLog)
		api.DELETE("/energy/:id", h.DeleteEnergyLog)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
