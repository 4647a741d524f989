// File: internal/handlers/operator_handler.go
package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"

	"studio-verifier/internal/auth"
	"studio-verifier/internal/config"
	"studio-verifier/internal/models"
	"studio-verifier/internal/services"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// HandleOperatorLogin checks the configured operator credential pair and
// issues the bearer token for the operator endpoints. This is a deployment
// credential, not a user account system.
func HandleOperatorLogin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			returnError(c, http.StatusBadRequest, "email and password are required")
			return
		}

		emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(cfg.OperatorEmail)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.OperatorPassword)) == 1
		if !emailOK || !passOK {
			log.Printf("WARN: Failed operator login attempt for '%s'", req.Email)
			returnError(c, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := auth.GenerateOperatorJWT(cfg.JWTSecretKey, req.Email)
		if err != nil {
			log.Printf("ERROR: Could not issue operator token: %v", err)
			returnError(c, http.StatusInternalServerError, "Could not issue token")
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// HandleListPayments returns payment records, optionally filtered with
// ?status=pending|verified|mismatch.
func HandleListPayments(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := v.Payments(c.Request.Context(), models.PaymentStatus(c.Query("status")))
		if err != nil {
			log.Printf("ERROR: Failed to list payments: %v", err)
			returnError(c, http.StatusInternalServerError, "Could not list payments")
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": payments})
	}
}

// HandleListClaims returns claim records, optionally filtered with
// ?status=awaiting|verified|mismatch|timed_out.
func HandleListClaims(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := v.Claims(c.Request.Context(), models.ClaimStatus(c.Query("status")))
		if err != nil {
			log.Printf("ERROR: Failed to list claims: %v", err)
			returnError(c, http.StatusInternalServerError, "Could not list claims")
			return
		}
		c.JSON(http.StatusOK, gin.H{"claims": claims})
	}
}

// HandleListConfirmations returns the append-only confirmation log.
func HandleListConfirmations(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		confirmations, err := v.Confirmations(c.Request.Context())
		if err != nil {
			log.Printf("ERROR: Failed to list confirmations: %v", err)
			returnError(c, http.StatusInternalServerError, "Could not list confirmations")
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmations": confirmations})
	}
}
