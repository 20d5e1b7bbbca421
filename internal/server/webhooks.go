package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/sokoline/sokoline/internal/gateway/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"github.com/sokoline/sokoline/internal/webhook"
	"go.uber.org/zap"
)

// handlePaymentWebhook answers providers directly instead of going through
// the error middleware: the status code is a retry instruction to the
// provider, not an API response. 2xx stops redelivery, so every outcome that
// redelivery cannot fix (no-ops, unknown ids, blocked conflicts) answers 200.
func (s *Server) handlePaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "reason": "empty_body"})
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"status":       result.Status,
			"order_number": result.OrderNumber,
			"noop":         result.Noop,
		})
	case errors.Is(err, transactiondomain.ErrUnknownTransaction):
		s.log.Warn("webhook for unknown transaction",
			zap.String("provider", provider),
			zap.Bool("alert", true),
		)
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": "unknown_transaction"})
	case errors.Is(err, transactiondomain.ErrConflictNotApplied):
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": "conflict_not_applied"})
	case errors.Is(err, gatewaydomain.ErrProviderNotFound),
		errors.Is(err, gatewaydomain.ErrInvalidSignature),
		errors.Is(err, gatewaydomain.ErrInvalidPayload),
		errors.Is(err, transactiondomain.ErrInvalidExternalID),
		errors.Is(err, transactiondomain.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "reason": err.Error()})
	case webhook.Retryable(err):
		s.log.Error("webhook processing failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "reason": "processing_failed"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "reason": err.Error()})
	}
}
