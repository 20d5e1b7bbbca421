package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	vendordomain "github.com/sokoline/sokoline/internal/vendors/domain"
)

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

func (s *Server) handleVendorBalance(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_vendor", "invalid vendor id"))
		return
	}

	balance, err := s.vendorSvc.Balance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) handleVendorTransactions(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_vendor", "invalid vendor id"))
		return
	}

	limit, offset := pagination(c)
	items, err := s.vendorSvc.ListTransactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

func (s *Server) handleVendorWithdrawals(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_vendor", "invalid vendor id"))
		return
	}

	limit, offset := pagination(c)
	items, err := s.vendorSvc.ListWithdrawals(c.Request.Context(), id, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": items})
}

func (s *Server) handleRequestWithdrawal(c *gin.Context) {
	var input vendordomain.WithdrawalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.vendorSvc.RequestWithdrawal(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleApproveWithdrawal(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_withdrawal", "invalid withdrawal id"))
		return
	}

	updated, err := s.vendorSvc.ApproveWithdrawal(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectWithdrawal(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_withdrawal", "invalid withdrawal id"))
		return
	}

	var req rejectWithdrawalRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "rejected_by_admin"
	}

	updated, err := s.vendorSvc.RejectWithdrawal(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleProcessWithdrawal(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_withdrawal", "invalid withdrawal id"))
		return
	}

	processed, err := s.vendorSvc.ProcessWithdrawal(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, processed)
}
