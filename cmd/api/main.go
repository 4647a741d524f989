// File: cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"studio-verifier/internal/config"
	"studio-verifier/internal/matcher"
	"studio-verifier/internal/routes"
	"studio-verifier/internal/services"
	"studio-verifier/internal/session"
	"studio-verifier/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found. Reading from environment.")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load configuration: %v", err)
	}

	var st store.Store
	if cfg.DatabasePath != "" {
		st, err = store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("FATAL: Could not open store: %v", err)
		}
		log.Printf("INFO: Using SQLite store at %s", cfg.DatabasePath)
	} else {
		st = store.NewMemory()
		log.Println("WARN: DATABASE_PATH not set. Using in-memory store; records are lost on restart.")
	}

	hub := session.NewHub()
	sinks := []matcher.ConfirmationSink{hub}

	var notifier *services.Notifier
	if cfg.ConfirmationCallback != "" {
		notifier = services.NewNotifier(cfg.ConfirmationCallback)
		sinks = append(sinks, notifier)
		log.Printf("INFO: Confirmation callbacks will be delivered to %s", cfg.ConfirmationCallback)
	}

	engine := matcher.New(st, cfg.MatchInterval, sinks...)
	go engine.Run(context.Background())

	verifier := services.NewVerifier(st, engine, hub, notifier, cfg.PollInterval, cfg.PollMaxAttempts)

	gin.SetMode(cfg.GinMode)
	router := routes.SetupRouter(cfg, verifier)

	listenAddr := fmt.Sprintf(":%s", cfg.GinPort)

	log.Printf("🚀 Starting Studio Payment Verifier server at: http://localhost%s", listenAddr)

	if err := router.Run(listenAddr); err != nil {
		log.Fatalf("FATAL: Could not start server: %v", err)
	}
}
