// File: internal/middleware/auth.go
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"strings"

	"studio-verifier/internal/auth"

	"github.com/gin-gonic/gin"
)

// VerifyCollectorSignature authenticates the SMS collector posting to the
// ingest endpoint: the request body must carry an HMAC-SHA256 signature of
// itself in X-Collector-Signature.
func VerifyCollectorSignature(webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader("X-Collector-Signature")
		if signature == "" {
			log.Println("WARN: Ingest request rejected. Missing X-Collector-Signature header.")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Signature header is required"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("ERROR: Failed to read ingest request body: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Cannot read request body"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		mac := hmac.New(sha256.New, []byte(webhookSecret))
		mac.Write(body)
		expectedSignature := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
			log.Println("WARN: Ingest request rejected. Invalid signature.")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid signature"})
			return
		}

		c.Next()
	}
}

// RequireOperator guards the corrective and listing endpoints with the
// operator bearer token.
func RequireOperator(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token format, must be a Bearer token"})
			return
		}

		claims, err := auth.ParseOperatorJWT(jwtSecret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set("operator", claims.Subject)
		c.Next()
	}
}
