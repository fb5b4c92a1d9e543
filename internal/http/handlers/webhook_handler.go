package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

const captureStatusSucceeded = "succeeded"

// WebhookHandler принимает callbacks платёжного шлюза. Шлюз подписывает тело
// HMAC-SHA256 и шлёт события at-least-once: повтор уже применённого события
// должен вернуть 200, иначе шлюз будет ретраить вечно.
type WebhookHandler struct {
	settlement *service.SettlementService
	secret     []byte
}

func NewWebhookHandler(settlement *service.SettlementService, secret string) *WebhookHandler {
	return &WebhookHandler{settlement: settlement, secret: []byte(secret)}
}

// HandleCapture POST /webhooks/payment
func (h *WebhookHandler) HandleCapture(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Gateway-Signature")) {
		common.RespondUnauthorized(c, "подпись webhook невалидна")
		return
	}

	var event dto.GatewayCaptureEvent
	if err := json.Unmarshal(body, &event); err != nil {
		common.RespondBadRequest(c, "невалидное тело события")
		return
	}

	success := event.Status == captureStatusSucceeded
	order, err := h.settlement.HandleCapture(c.Request.Context(), event.OrderID, success, event.EventID)
	if err != nil && !errors.Is(err, service.ErrPaymentCapture) {
		c.Error(err)
		return
	}
	// Неуспешный capture — штатный исход для шлюза: заказ отменён, событие
	// обработано, ретраить нечего.
	c.JSON(http.StatusOK, gin.H{"order_id": order.ID, "status": order.Status})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
