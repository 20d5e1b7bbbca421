package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

func parseID(raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var input orderdomain.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.orderSvc.Create(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_order", "invalid order id"))
		return
	}

	found, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

type initiatePaymentRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleInitiatePayment(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_order", "invalid order id"))
		return
	}

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Provider) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkout, err := s.txSvc.InitiatePayment(c.Request.Context(), transactiondomain.InitiatePaymentRequest{
		OrderID:  id,
		Provider: req.Provider,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkout)
}

func (s *Server) handleMarkShipped(c *gin.Context) {
	s.handleFulfillment(c, s.orderSvc.MarkShipped)
}

func (s *Server) handleMarkDelivered(c *gin.Context) {
	s.handleFulfillment(c, s.orderSvc.MarkDelivered)
}

func (s *Server) handleFulfillment(c *gin.Context, action func(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error)) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_order", "invalid order id"))
		return
	}

	updated, err := action(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
