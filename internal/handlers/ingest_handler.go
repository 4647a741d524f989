// File: internal/handlers/ingest_handler.go
package handlers

import (
	"errors"
	"log"
	"net/http"

	"studio-verifier/internal/models"
	"studio-verifier/internal/services"
	"studio-verifier/internal/sms"

	"github.com/gin-gonic/gin"
)

type IngestRequest struct {
	RawText  string `json:"raw_text" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

// HandleIngest receives one raw provider notification from the SMS
// collector. A message the grammar cannot parse is acknowledged with 422
// and dropped; the collector should not retry it.
func HandleIngest(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			returnError(c, http.StatusBadRequest, "raw_text and provider are required")
			return
		}

		payment, err := v.Ingest(c.Request.Context(), req.RawText, models.Provider(req.Provider))
		if err != nil {
			var parseErr *sms.ParseError
			switch {
			case errors.As(err, &parseErr):
				returnError(c, http.StatusUnprocessableEntity, parseErr.Error())
			case errors.Is(err, sms.ErrUnknownProvider):
				returnError(c, http.StatusBadRequest, err.Error())
			default:
				log.Printf("ERROR: Failed to store ingested payment: %v", err)
				returnError(c, http.StatusInternalServerError, "Could not store the incoming payment")
			}
			return
		}

		c.JSON(http.StatusCreated, payment)
	}
}
