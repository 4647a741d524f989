// File: internal/handlers/claim_handler.go
package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"studio-verifier/internal/services"
	"studio-verifier/internal/session"
	"studio-verifier/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SubmitClaimRequest struct {
	Amount        int64  `json:"amount" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
}

// HandleSubmitClaim registers a customer's payment claim.
func HandleSubmitClaim(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitClaimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			returnError(c, http.StatusBadRequest, "amount and transaction_id are required")
			return
		}

		claim, err := v.SubmitClaim(c.Request.Context(), req.Amount, req.TransactionID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrMissingTransactionID):
				returnError(c, http.StatusBadRequest, err.Error())
			default:
				log.Printf("ERROR: Failed to store claim: %v", err)
				returnError(c, http.StatusInternalServerError, "Could not store the claim")
			}
			return
		}

		c.JSON(http.StatusCreated, claim)
	}
}

// HandleClaimEvents streams a claim's verification session as Server-Sent
// Events. The stream carries AWAITING and then exactly one of VERIFIED,
// MISMATCH or TIMED_OUT; a client disconnect cancels the session without a
// terminal transition.
func HandleClaimEvents(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			returnError(c, http.StatusBadRequest, "claim id must be a valid UUID")
			return
		}

		events, err := v.StartVerification(c.Request.Context(), claimID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				returnError(c, http.StatusNotFound, "Unknown claim")
				return
			}
			log.Printf("ERROR: Could not start verification for claim %s: %v", claimID, err)
			returnError(c, http.StatusInternalServerError, "Could not start verification")
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			ev, ok := <-events
			if !ok {
				return false
			}
			c.SSEvent(strings.ToLower(string(ev.State)), ev)
			return ev.State == session.StateAwaiting
		})
	}
}

type CorrectRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
}

// HandleCorrectTransaction is the operator's mismatch-resolution action:
// supply the transaction id the payment actually carried and the claim is
// promoted to verified.
func HandleCorrectTransaction(v *services.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			returnError(c, http.StatusBadRequest, "claim id must be a valid UUID")
			return
		}

		var req CorrectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			returnError(c, http.StatusBadRequest, "transaction_id is required")
			return
		}

		conf, err := v.CorrectTransactionID(c.Request.Context(), claimID, req.TransactionID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				returnError(c, http.StatusNotFound, "Unknown claim")
			case errors.Is(err, services.ErrClaimNotMismatched), errors.Is(err, services.ErrWrongCorrectedID):
				returnError(c, http.StatusConflict, err.Error())
			case errors.Is(err, store.ErrConflict):
				returnError(c, http.StatusConflict, "Claim was updated concurrently, retry")
			default:
				log.Printf("ERROR: Correction failed for claim %s: %v", claimID, err)
				returnError(c, http.StatusInternalServerError, "Could not apply the correction")
			}
			return
		}

		c.JSON(http.StatusOK, conf)
	}
}
