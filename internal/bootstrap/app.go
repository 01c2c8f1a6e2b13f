package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"group-chat-server/internal/authz"
	httpHandler "group-chat-server/internal/handler/http"
	wsHandler "group-chat-server/internal/handler/websocket"
	"group-chat-server/internal/hub"
	"group-chat-server/internal/infra/moderation"
	gormpersistence "group-chat-server/internal/infra/persistence/gorm"
	"group-chat-server/internal/infra/setup"
	redisstate "group-chat-server/internal/infra/state/redis"
	"group-chat-server/internal/middleware"
	"group-chat-server/internal/service"
	"group-chat-server/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser             string
	DBPassword         string
	DBHost             string
	DBPort             string
	DBName             string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	JWTSecret          string
	ServerPort         string
	LogLevel           string
	RateLimitMax       int
	RateLimitWindow    time.Duration
	JWTExpiryHours     int
	AppEnv             string
	KeyPrefix          string
	CORSAllowedOrigin  string
	ModerationEndpoint string
	ModerationTimeout  time.Duration
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBHost:             os.Getenv("DB_HOST"),
		DBPort:             os.Getenv("DB_PORT"),
		DBName:             os.Getenv("DB_NAME"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		ServerPort:         os.Getenv("SERVER_PORT"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		AppEnv:             os.Getenv("APP_ENV"),
		KeyPrefix:          os.Getenv("REDIS_KEY_PREFIX"),
		CORSAllowedOrigin:  os.Getenv("CORS_ALLOWED_ORIGIN"),
		ModerationEndpoint: os.Getenv("MODERATION_ENDPOINT"),
		RateLimitMax:       100,
		RateLimitWindow:    1 * time.Second,
		JWTExpiryHours:     24,
		ModerationTimeout:  30 * time.Second,
	}

	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr)

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gc:"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.ModerationEndpoint == "" {
		return nil, fmt.Errorf("environment variable MODERATION_ENDPOINT must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	moderationClient, err := moderation.NewHTTPClient(cfg.ModerationEndpoint, cfg.ModerationTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create moderation client: %w", err)
	}
	log.Info("Moderation client initialized")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	userRepo := gormpersistence.NewGormUserRepository(db)
	conversationRepo := gormpersistence.NewGormConversationRepository(db)
	membershipRepo := gormpersistence.NewGormMembershipRepository(db)
	relationshipRepo := gormpersistence.NewGormRelationshipRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	mediaRepo := gormpersistence.NewGormMediaRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化授权桥和 Hub
	bridge := authz.NewBridge()
	hubInstance := hub.NewHub(bridge)
	log.Info("Authorization bridge and hub initialized")

	// 6. 初始化 Services
	log.Info("Initializing services...")
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	userService := service.NewUserService(userRepo)
	relationshipService := service.NewRelationshipService(relationshipRepo, membershipRepo, userRepo)
	membershipService := service.NewMembershipService(membershipRepo, conversationRepo, userRepo)
	conversationService := service.NewConversationService(conversationRepo, membershipRepo, userRepo)
	messageService := service.NewMessageService(messageRepo, stateRepo, bridge, hubInstance)
	mediaService := service.NewMediaService(mediaRepo, bridge, hubInstance, asynqClient)

	// 成员子系统注册为授权桥的唯一响应者，重复注册立即失败
	if err := membershipService.RegisterAuthz(bridge); err != nil {
		return nil, fmt.Errorf("failed to register membership authz handler: %w", err)
	}
	log.Info("Services initialized")

	// 7. 初始化 Handlers
	log.Info("Initializing handlers...")
	authHandler := httpHandler.NewAuthHandler(authService)
	userHandler := httpHandler.NewUserHandler(userService)
	relationshipHandler := httpHandler.NewRelationshipHandler(relationshipService)
	membershipHandler := httpHandler.NewMembershipHandler(membershipService)
	conversationHandler := httpHandler.NewConversationHandler(conversationService)
	messageHandler := httpHandler.NewMessageHandler(messageService)
	mediaHandler := httpHandler.NewMediaHandler(mediaService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, mediaService, membershipService, moderationClient, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSAllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(cfg.JWTSecret))
	{
		userRoutes := authed.Group("/users")
		{
			userRoutes.GET("/me", userHandler.GetMe)
			userRoutes.PATCH("/me", userHandler.UpdateMe)
			userRoutes.GET("/:userId", userHandler.GetByID)
		}

		relationshipRoutes := authed.Group("/relationships")
		{
			relationshipRoutes.POST("", relationshipHandler.Request)
			relationshipRoutes.GET("", relationshipHandler.ListMine)
			relationshipRoutes.GET("/:relationshipId", relationshipHandler.GetByID)
			relationshipRoutes.PATCH("/:relationshipId/accept", relationshipHandler.Accept)
			relationshipRoutes.PATCH("/:relationshipId/unblock", relationshipHandler.Unblock)
			relationshipRoutes.DELETE("/:relationshipId", relationshipHandler.Remove)
			relationshipRoutes.POST("/block", relationshipHandler.Block)
		}

		conversationRoutes := authed.Group("/conversations")
		{
			conversationRoutes.POST("", conversationHandler.CreateGroup)
			conversationRoutes.GET("", membershipHandler.ListMyConversations)
			conversationRoutes.GET("/:conversationId", conversationHandler.GetByID)

			conversationRoutes.GET("/:conversationId/membership", membershipHandler.GetMine)
			conversationRoutes.GET("/:conversationId/members", membershipHandler.ListMembers)
			conversationRoutes.POST("/:conversationId/members", membershipHandler.AddMember)
			conversationRoutes.PATCH("/:conversationId/host", membershipHandler.ChangeHost)
			conversationRoutes.POST("/:conversationId/leave", membershipHandler.Leave)
			conversationRoutes.POST("/:conversationId/members/:userId/ban", membershipHandler.Ban)
			conversationRoutes.POST("/:conversationId/members/:userId/unban", membershipHandler.Unban)
			conversationRoutes.DELETE("/:conversationId/members/:userId", membershipHandler.RemoveMember)
			conversationRoutes.PATCH("/:conversationId/members/:userId/role", membershipHandler.UpdateRole)

			conversationRoutes.POST("/:conversationId/messages", messageHandler.Create)
			conversationRoutes.GET("/:conversationId/messages", messageHandler.ListByConversation)
			conversationRoutes.POST("/:conversationId/media", mediaHandler.Create)
			conversationRoutes.GET("/:conversationId/media", mediaHandler.ListByConversation)
		}

		authed.GET("/messages/:messageId", messageHandler.GetByID)
		authed.GET("/media/:mediaId", mediaHandler.GetByID)
	}

	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("", websocketHandler.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 2. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 3. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 4. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
