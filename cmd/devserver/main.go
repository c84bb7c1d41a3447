package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/chirpfeed/chirpfeed/handlers"
	"github.com/chirpfeed/chirpfeed/internal/blob"
	"github.com/chirpfeed/chirpfeed/internal/composer"
	"github.com/chirpfeed/chirpfeed/internal/config"
	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/session"
	"github.com/chirpfeed/chirpfeed/internal/sessions"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/internal/tokens"
	"github.com/chirpfeed/chirpfeed/pkg/middleware"
)

// devserver runs the full API against in-process adapters only: no MongoDB,
// no MinIO, no Redis. Everything is lost on exit.
func main() {
	port := os.Getenv("DEV_SERVER_PORT")
	if port == "" {
		port = "5010"
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Identity.JWTSecret == "" {
		cfg.Identity.JWTSecret = "devserver-secret"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	docStore := store.NewMemory()
	blobs := blob.NewMemory()
	accounts := identity.NewMemoryAccountRepository()
	sessionsSvc := sessions.NewService(sessions.NewMemoryRepository())

	directory := identity.NewDirectory(accounts, identity.NewInsecureFederated(), nil)
	sessMgr := session.NewManager(directory)
	sessMgr.Start()
	defer sessMgr.Close()

	comp := composer.New(docStore, blobs, directory, sessMgr)

	authH := handlers.NewAuthHandler(cfg, directory, accounts, comp, sessionsSvc)
	authH.Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	feedH := handlers.NewFeedHandler(docStore, comp, sessMgr)
	feedH.Register(r, middleware.AuthMiddleware(tokens.NewVerifier(cfg)))

	log.Printf("devserver listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("devserver failed: %v", err)
	}
}
