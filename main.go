package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chirpfeed/chirpfeed/handlers"
	"github.com/chirpfeed/chirpfeed/internal/blob"
	"github.com/chirpfeed/chirpfeed/internal/composer"
	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/internal/database"
	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/session"
	"github.com/chirpfeed/chirpfeed/internal/sessions"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/internal/tokens"
	"github.com/chirpfeed/chirpfeed/pkg/logger"
	"github.com/chirpfeed/chirpfeed/pkg/metrics"
	"github.com/chirpfeed/chirpfeed/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v oidc=%v",
		cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", cfg.Identity.OIDCIssuer != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple. Production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so the blacklist and rate limiter can use it
	var importedRedis *redis.Client
	if cfg.Redis.Host != "" {
		importedRedis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := importedRedis.Ping(ctx).Err(); err == nil {
			sessions.SetBlacklistClient(importedRedis)
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			importedRedis = nil
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && importedRedis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(importedRedis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Federated identity verifier (optional)
	var federated *identity.Federated
	if cfg.Identity.OIDCIssuer != "" && cfg.Identity.OIDCClientID != "" {
		fed, err := identity.NewFederated(ctx, cfg.Identity.OIDCIssuer, cfg.Identity.OIDCClientID)
		if err != nil {
			logger.Warnf("failed to initialize federated verifier: %v", err)
		} else {
			federated = fed
		}
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
		logger.Warn("enabling insecure federated verifier (integration mode)")
		federated = identity.NewInsecureFederated()
	}

	// Refresh sessions: prefer Redis when available
	var sessionsSvc *sessions.Service
	if importedRedis != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(importedRedis, "session:"))
		logger.Infof("Using Redis for refresh session storage")
	}

	// Document store and account directory: Mongo-backed when configured,
	// in-process otherwise (dev mode).
	var docStore store.Store
	var accounts identity.AccountRepository
	if cfg.MongoDB.URI != "" {
		client, errConn := connectMongoWithRetry(ctx, cfg)
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB: %v", errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			docStore = store.NewMongo(db)
			accounts = identity.NewMongoAccountRepository(db.Collection("accounts"))
			if sessionsSvc == nil {
				sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
			}
		}
	}
	if docStore == nil {
		logger.Warn("MongoDB unavailable, using in-process store (dev mode)")
		docStore = store.NewMemory()
		accounts = identity.NewMemoryAccountRepository()
	}
	if sessionsSvc == nil {
		sessionsSvc = sessions.NewService(sessions.NewMemoryRepository())
	}

	// Blob storage: MinIO when configured, in-process otherwise.
	var blobs blob.Storage
	if cfg.MinIO.Endpoint != "" {
		s, err := blob.NewMinIO(&blob.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
			URLExpiry: cfg.MinIO.URLExpiry,
		})
		if err != nil {
			logger.Fatalf("failed to initialize MinIO: %v", err)
		}
		blobs = s
	} else {
		logger.Warn("MinIO not configured, using in-process blob storage (dev mode)")
		blobs = blob.NewMemory()
	}

	// Session core: the directory publishes auth changes, the manager
	// mirrors them for the lifetime of the process.
	directory := identity.NewDirectory(accounts, federated, nil)
	sessMgr := session.NewManager(directory)
	sessMgr.Start()
	defer sessMgr.Close()

	comp := composer.New(docStore, blobs, directory, sessMgr)
	verifier := tokens.NewVerifier(cfg)

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"store":    docStore != nil,
			"blobs":    blobs != nil,
			"sessions": sessionsSvc != nil,
		}
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = importedRedis != nil
		}
		for _, ok := range deps {
			if !ok {
				ready = false
			}
		}
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	authH := handlers.NewAuthHandler(cfg, directory, accounts, comp, sessionsSvc)
	authH.Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	feedH := handlers.NewFeedHandler(docStore, comp, sessMgr)
	feedH.Register(r, middleware.AuthMiddleware(verifier))

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting chirpfeed on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

// connectMongoWithRetry tolerates startup races against the database container.
func connectMongoWithRetry(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	const maxAttempts = 5
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, lastErr
}
