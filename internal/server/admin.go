package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	"go.uber.org/zap"
)

type forceSuccessRequest struct {
	TransactionID string `json:"transaction_id"`
}

// handleForceSuccess is the manual override: it fabricates a success report
// for the external transaction id and pushes it through the same application
// path as webhooks, conflict guard included.
func (s *Server) handleForceSuccess(c *gin.Context) {
	var req forceSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TransactionID) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	s.log.Warn("manual force-success requested",
		zap.String("external_id", req.TransactionID),
		zap.Bool("alert", true),
	)

	result, err := s.txSvc.ApplyStatus(c.Request.Context(), transactiondomain.ApplyInput{
		ExternalID: req.TransactionID,
		Status:     transactiondomain.StatusSuccess,
		Source:     transactiondomain.SourceManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"order_number": result.OrderNumber,
		"noop":         result.Noop,
	})
}

func (s *Server) handleListConflicts(c *gin.Context) {
	limit, offset := pagination(c)
	conflicts, err := s.txSvc.ListConflicts(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

type manualReconcileRequest struct {
	Job    string `json:"job"`
	Source string `json:"source"`
}

func (s *Server) handleManualReconcile(c *gin.Context) {
	var req manualReconcileRequest
	_ = c.ShouldBindJSON(&req)
	if req.Source == "" {
		req.Source = "manual"
	}

	var err error
	if req.Job == "" {
		err = s.scheduler.RunOnce(c.Request.Context())
	} else {
		err = s.scheduler.RunJob(c.Request.Context(), req.Job, req.Source)
	}
	if err != nil {
		// Per-item sweep failures are already logged and recorded; the
		// trigger itself succeeded.
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleRetryEffects(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_order", "invalid order id"))
		return
	}

	errs := s.dispatcher.Retry(c.Request.Context(), id)
	if len(errs) == 1 && (errors.Is(errs[0], orderdomain.ErrOrderNotFound) || errors.Is(errs[0], orderdomain.ErrOrderNotPaid)) {
		AbortWithError(c, errs[0])
		return
	}
	if len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "errors": messages})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
