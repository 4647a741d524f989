package routes

import (
	"fmt"
	"log"
	"net/http"

	"studio-verifier/internal/config"
	"studio-verifier/internal/handlers"
	"studio-verifier/internal/middleware"
	"studio-verifier/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(cfg *config.Config, verifier *services.Verifier) *gin.Engine {
	router := gin.Default()

	if cfg.FrontendURL == "" {
		log.Println("WARN: FRONTEND_URL not set. CORS might be too permissive or too restrictive.")
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Collector-Signature"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	} else {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontendURL},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Collector-Signature"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
		log.Printf("INFO: CORS configured to allow origin: %s", cfg.FrontendURL)
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.POST("/login", handlers.HandleOperatorLogin(cfg))

	router.POST("/claims", handlers.HandleSubmitClaim(verifier))
	router.GET("/claims/:id/events", handlers.HandleClaimEvents(verifier))

	webhooks := router.Group("/webhooks")
	webhooks.Use(middleware.VerifyCollectorSignature(cfg.CollectorWebhookSecret))
	{
		webhooks.POST("/ingest", handlers.HandleIngest(verifier))
	}

	operator := router.Group("/")
	operator.Use(middleware.RequireOperator(cfg.JWTSecretKey))
	{
		operator.POST("/claims/:id/correct", handlers.HandleCorrectTransaction(verifier))
		operator.GET("/payments", handlers.HandleListPayments(verifier))
		operator.GET("/claims", handlers.HandleListClaims(verifier))
		operator.GET("/confirmations", handlers.HandleListConfirmations(verifier))
	}

	log.Println("✅ Registered API Routes:")
	for _, route := range router.Routes() {
		log.Println(fmt.Sprintf("    - %-6s %s", route.Method, route.Path))
	}

	return router
}
