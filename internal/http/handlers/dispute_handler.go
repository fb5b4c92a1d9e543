package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
)

type DisputeHandler struct {
	disputes *service.DisputeService
	storage  *storage.EvidenceStorage
}

func NewDisputeHandler(disputes *service.DisputeService, storage *storage.EvidenceStorage) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, storage: storage}
}

// OpenDispute POST /orders/:id/dispute
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
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

	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.Open(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// GetOrderDispute GET /orders/:id/dispute
func (h *DisputeHandler) GetOrderDispute(c *gin.Context) {
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

	dispute, err := h.disputes.GetByOrder(c.Request.Context(), orderID, userID, common.IsAdmin(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

// ListMyDisputes GET /disputes
func (h *DisputeHandler) ListMyDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListUserDisputes(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, disputes)
}

// UploadEvidence POST /disputes/:id/evidence
func (h *DisputeHandler) UploadEvidence(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл обязателен")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(err)
		return
	}
	defer file.Close()

	relPath, size, err := h.storage.Save(c.Request.Context(), disputeID, fileHeader.Filename, file)
	if err != nil {
		c.Error(err)
		return
	}

	evidence, err := h.disputes.AttachEvidence(c.Request.Context(), disputeID, userID, relPath, size)
	if err != nil {
		// Файл уже на диске, а запись не создана: подчищаем.
		_ = h.storage.Delete(c.Request.Context(), relPath)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, evidence)
}

// ListOpenDisputes GET /admin/disputes — очередь арбитража.
func (h *DisputeHandler) ListOpenDisputes(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListOpen(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, disputes)
}

// ResolveDispute POST /admin/disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	idemKey := common.IdempotencyKey(c)
	if idemKey == "" {
		idemKey = disputeID.String() + ":resolve"
	}

	dispute, err := h.disputes.Resolve(c.Request.Context(), disputeID, req.Decision, req.Amount, adminID, idemKey)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
