package server

import (
	"context"
	"log"
	"net/http"
	"slices"
	"time"

	"anoa.com/noticeboard/internal/config"
	"anoa.com/noticeboard/internal/middleware"
	"anoa.com/noticeboard/internal/modules/notification/alert"
	"anoa.com/noticeboard/internal/modules/notification/sweeper"

	noticeHttp "anoa.com/noticeboard/internal/modules/notice/delivery/http"
	noticeRepo "anoa.com/noticeboard/internal/modules/notice/repository"
	noticeService "anoa.com/noticeboard/internal/modules/notice/service"

	notiHttp "anoa.com/noticeboard/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/noticeboard/internal/modules/notification/repository"
	notifService "anoa.com/noticeboard/internal/modules/notification/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	cancel      context.CancelFunc
}

// NewServer wires every module. A nil redisClient falls back to an
// in-process change feed and unbuffered view counters, which only works
// with a single instance.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	// Notification Module
	var feed notifService.ChangeFeed
	if redisClient != nil {
		feed = notifService.NewRedisFeed(redisClient)
	} else {
		log.Println("⚠️  Redis not configured, using in-process notification feed")
		feed = notifService.NewLocalFeed()
	}
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, feed, cfg.FeedLimit)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc)

	expirySweeper := sweeper.New(notificationSvc)
	if cfg.SweepInterval > 0 {
		go expirySweeper.StartWorker(ctx, cfg.SweepInterval)
	}

	wsHandler := notiHttp.NewWebSocketHandler(notificationSvc, expirySweeper, notiHttp.SessionConfig{
		Assets: alert.Assets{
			Default: cfg.SoundDefault,
			High:    cfg.SoundHigh,
			Urgent:  cfg.SoundUrgent,
			Volume:  cfg.SoundVolume,
		},
		AutoDismiss:       cfg.AlertAutoDismiss,
		PermissionTimeout: cfg.PermissionTimeout,
	}, checkOrigin(cfg.AllowedOrigins))

	// Notice Module
	var viewBuffer noticeService.ViewBuffer
	if redisClient != nil {
		viewBuffer = noticeService.NewRedisBuffer(redisClient)
	}
	noticeSvc := noticeService.NewNoticeService(noticeRepo.NewRepository(db), viewBuffer)
	noticeHandler := noticeHttp.NewNoticeHandler(noticeSvc)
	if viewBuffer != nil {
		go noticeSvc.StartViewSyncWorker(ctx, cfg.ViewSyncInterval)
	}

	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/notifications/ws"},
	}))

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	api := router.Group("/api")

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Admin routes
		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireAdmin())
		{
			adminGroup.POST("/notifications", notificationHandler.CreateNotification)
			adminGroup.POST("/notifications/bulk", notificationHandler.BulkCreateNotifications)
			adminGroup.POST("/notifications/sweep", notificationHandler.SweepExpired)
		}

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.GET("/notifications/stats", notificationHandler.GetStats)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.DELETE("/notifications/:id", notificationHandler.DeleteNotification)
		protected.DELETE("/notifications", notificationHandler.DeleteAll)
		protected.DELETE("/notifications/read", notificationHandler.DeleteRead)
		protected.GET("/notifications/ws", wsHandler.HandleWebSocket)

		// Notice routes
		protected.GET("/notices/:id", noticeHandler.GetNotice)
		protected.POST("/notices/:id/view", noticeHandler.RecordView)
		protected.POST("/notices/:id/like", noticeHandler.Like)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		cancel:      cancel,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(addr string) error {
	defer s.cancel()
	return s.engine.Run(addr)
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// checkOrigin accepts socket upgrades from the CORS origins and from
// clients that send no Origin header.
func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
