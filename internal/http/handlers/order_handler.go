package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

type OrderHandler struct {
	settlement *service.SettlementService
	history    *repository.OrderHistoryRepository
}

func NewOrderHandler(settlement *service.SettlementService, history *repository.OrderHistoryRepository) *OrderHandler {
	return &OrderHandler{settlement: settlement, history: history}
}

// CreateOrder POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.settlement.CreateOrder(c.Request.Context(), userID, req.SellerID, req.ProductRef, req.Amount, common.IdempotencyKey(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.settlement.GetOrder(c.Request.Context(), orderID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	orders, err := h.settlement.ListOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrderHistory GET /orders/:id/history
func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Проверка доступа та же, что и для карточки заказа.
	if _, err := h.settlement.GetOrder(c.Request.Context(), orderID, userID, common.IsAdmin(c)); err != nil {
		c.Error(err)
		return
	}

	history, err := h.history.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// MarkDelivered POST /orders/:id/deliver
func (h *OrderHandler) MarkDelivered(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.settlement.MarkDelivered(c.Request.Context(), orderID, userID, common.IdempotencyKey(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ConfirmDelivery POST /orders/:id/confirm
func (h *OrderHandler) ConfirmDelivery(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	idemKey := common.IdempotencyKey(c)
	if idemKey == "" {
		idemKey = orderID.String() + ":confirm"
	}

	order, err := h.settlement.ConfirmDelivery(c.Request.Context(), orderID, userID, false, idemKey)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrder POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.settlement.CancelOrder(c.Request.Context(), orderID, userID, common.IdempotencyKey(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}
