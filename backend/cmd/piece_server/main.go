package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"pieceServer/backend/config"
	"pieceServer/backend/internal/authservice"
	"pieceServer/backend/internal/cache"
	"pieceServer/backend/internal/collab"
	"pieceServer/backend/internal/httpapi/handlers"
	"pieceServer/backend/internal/httpapi/middleware"
	"pieceServer/backend/internal/piecetable"
	"pieceServer/backend/internal/store"
	"pieceServer/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: port=%d redis=%v kafka=%v topic=%s", cfg.Running.Port, cfg.Redis.Addrs, cfg.Kafka.Brokers, cfg.Kafka.Topic)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 一个地址走单机，多个地址走 cluster
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis failed: %v", err)
	}
	defer rdb.Close()

	gdb, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open mysql (gorm) failed: %v", err)
	}
	sqlDB, err := store.OpenSQL(ctx, cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open mysql failed: %v", err)
	}
	defer sqlDB.Close()
	if err := store.EnsureSchema(ctx, sqlDB); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	// === Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("connect kafka failed: %v", err)
	}
	defer producer.Close()

	dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic, collab.NewSemaphoreControl(cfg.Kafka.Workers*2),
		collab.KafkaDispatcherOptions{
			QueueSize:   cfg.Kafka.QueueSize,
			Workers:     cfg.Kafka.Workers,
			MaxRetry:    cfg.Kafka.MaxRetry,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		})
	defer dispatcher.Close()

	svc := collab.NewInMemoryService(
		store.NewSnapshotStore(sqlDB),
		store.NewDocumentStore(gdb),
		cache.NewRenderCache(rdb),
		dispatcher,
		collab.Options{
			Table:      piecetable.Options{AddCapacity: cfg.Table.AddCapacity, MaxAddBytes: cfg.Table.MaxAddBytes},
			Render:     piecetable.Limits{MaxTextBytes: cfg.Render.MaxTextBytes, MaxLines: cfg.Render.MaxLines},
			RingCap:    cfg.Collab.RingCap,
			DumpPieces: cfg.Debug.DumpPieces,
		})

	signer := authservice.NewSigner(cfg.Auth.Secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authHandler := authservice.NewHandler(store.NewUserStore(sqlDB), signer)
	manager := ws.NewManager(ws.NewHub(cache.NewRedisPresence(rdb)), svc, collab.NewSemaphoreControl(cfg.Collab.Semaphore))

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	// 直连本服务调试时设置 PIECE_ENABLE_CORS=1；经网关转发时由网关加 CORS，避免重复的 Allow-Origin
	if os.Getenv("PIECE_ENABLE_CORS") == "1" {
		r.Use(cors.New(cors.Config{
			AllowOriginFunc:  func(origin string) bool { return true },
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	auth := r.Group("/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/verify", authHandler.Verify)
	}

	// 会从 Authorization 或 ?token= 提取 token，写入 userId/username
	collabGroup := r.Group("/collab")
	collabGroup.Use(middleware.AuthMiddleware(signer))
	collabGroup.GET("/ws", manager.WebSocketConnect)
	handlers.NewDocumentHandler(svc).Register(collabGroup.Group("/documents"))

	if err := r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
