package http

import (
	"time"

	"FormaLink/internal/config"
	"FormaLink/internal/initial"
	jwtMiddleware "FormaLink/internal/middleware/jwt"
	actionService "FormaLink/internal/modules/action/application/service"
	"FormaLink/internal/modules/action/domain/correlation"
	actionHandler "FormaLink/internal/modules/action/interface/http"
	notifService "FormaLink/internal/modules/notification/application/service"
	notifPersistence "FormaLink/internal/modules/notification/infrastructure/persistence"
	notifHandler "FormaLink/internal/modules/notification/interface/http"
	streamHandler "FormaLink/internal/modules/stream/interface/http"
	streamScheduler "FormaLink/internal/modules/stream/interface/scheduler"
	"FormaLink/pkg/ssl"
	"FormaLink/pkg/ws"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var GE *gin.Engine

// 进程级单例：显式创建、显式停止，不隐式重置
var (
	wsHub     *ws.Hub
	registry  *correlation.Registry
	scheduler *streamScheduler.Manager
)

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Callback-Token"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	wsHub = ws.NewHub()
	wsHub.StartHeartbeat(time.Duration(conf.StreamConfig.HeartbeatSeconds) * time.Second)

	registry = correlation.NewRegistry(time.Duration(conf.StreamConfig.SweepSeconds) * time.Second)
	registry.Start()

	notifRepo := notifPersistence.NewNotificationRepository(initial.GormDB)
	notifSvc := notifService.NewNotificationService(notifRepo, wsHub)
	dispatchSvc := actionService.NewDispatchService(registry, initial.KafkaPublisher,
		conf.KafkaConfig.ActionTopic, conf.WorkflowConfig.DefaultTimeoutSeconds)
	callbackSvc := actionService.NewCallbackService(registry, notifRepo, notifSvc, wsHub)

	notifH := notifHandler.NewNotificationHandler(notifSvc)
	actionH := actionHandler.NewActionHandler(dispatchSvc, callbackSvc)
	streamH := streamHandler.NewStreamHandler(wsHub, notifSvc)

	scheduler = streamScheduler.NewManager(notifRepo, notifSvc, wsHub,
		time.Duration(conf.StreamConfig.CountsRefreshSeconds)*time.Second)
	scheduler.Start()

	// WebSocket 握手带不了 Header，token 走 URL 参数，handler 内手动校验
	GE.GET("/wss", streamH.Connect)
	// 工作流引擎回调：静态令牌校验在 handler 内完成
	GE.POST("/action/callback", actionH.Callback)

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth())
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString("uuid"),
			"username": c.GetString("username"),
			"role":     c.GetString("role"),
		})
	})
	authed.POST("/action/dispatch", actionH.Dispatch)
	authed.GET("/action/types", actionH.ListActionTypes)
	authed.POST("/notification/getNotificationList", notifH.GetNotificationList)
	authed.POST("/notification/getNotificationCounts", notifH.GetNotificationCounts)
	authed.POST("/notification/markAsRead", notifH.MarkAsRead)
	authed.POST("/notification/markAllAsRead", notifH.MarkAllAsRead)
	authed.POST("/notification/executeAction", notifH.ExecuteAction)
}

// Stop 释放后台资源（优雅关闭时由 main 调用）
func Stop() {
	if scheduler != nil {
		scheduler.Stop()
	}
	if registry != nil {
		registry.Stop()
	}
	if wsHub != nil {
		wsHub.Stop()
	}
	if initial.KafkaPublisher != nil {
		_ = initial.KafkaPublisher.Close()
	}
}
