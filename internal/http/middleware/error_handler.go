package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
)

// известная ошибка домена и её представление для клиента.
type errorMapping struct {
	status  int
	message string
}

var errorMappings = []struct {
	err     error
	mapping errorMapping
}{
	{repository.ErrOrderNotFound, errorMapping{http.StatusNotFound, "заказ не найден"}},
	{repository.ErrDisputeNotFound, errorMapping{http.StatusNotFound, "спор не найден"}},
	{repository.ErrAccountNotFound, errorMapping{http.StatusNotFound, "счёт не найден"}},
	{repository.ErrWithdrawalNotFound, errorMapping{http.StatusNotFound, "заявка на вывод не найдена"}},
	{repository.ErrNotificationNotFound, errorMapping{http.StatusNotFound, "уведомление не найдено"}},
	{repository.ErrInsufficientFunds, errorMapping{http.StatusUnprocessableEntity, "недостаточно средств"}},
	{repository.ErrInsufficientHeldFunds, errorMapping{http.StatusUnprocessableEntity, "недостаточно замороженных средств"}},
	{repository.ErrConcurrencyConflict, errorMapping{http.StatusConflict, "заказ изменён конкурентной операцией, повторите запрос"}},
	{service.ErrInvalidOrderState, errorMapping{http.StatusConflict, "операция недопустима в текущем статусе заказа"}},
	{service.ErrNotParticipant, errorMapping{http.StatusForbidden, "нет доступа к этому заказу"}},
	{service.ErrPaymentCapture, errorMapping{http.StatusUnprocessableEntity, "оплата не прошла, заказ отменён"}},
	{service.ErrDisputeAlreadyOpen, errorMapping{http.StatusConflict, "спор по заказу уже открыт"}},
	{service.ErrDisputeAlreadyResolved, errorMapping{http.StatusConflict, "спор уже разрешён"}},
	{service.ErrInvalidResolution, errorMapping{http.StatusBadRequest, "неизвестное решение по спору"}},
	{service.ErrInvalidResolutionAmount, errorMapping{http.StatusBadRequest, "сумма частичного возврата вне допустимого диапазона"}},
	{service.ErrDisputeWindowClosed, errorMapping{http.StatusConflict, "окно открытия спора истекло"}},
	{service.ErrEvidenceNotAllowed, errorMapping{http.StatusConflict, "доказательства принимаются только по открытым спорам"}},
	{service.ErrInvalidAmount, errorMapping{http.StatusBadRequest, "сумма должна быть положительной"}},
	{service.ErrWithdrawalTooSmall, errorMapping{http.StatusBadRequest, "сумма вывода меньше минимальной"}},
	{service.ErrInvalidCard, errorMapping{http.StatusBadRequest, "неверные реквизиты карты"}},
	{storage.ErrFileTooLarge, errorMapping{http.StatusRequestEntityTooLarge, "файл превышает допустимый размер"}},
	{storage.ErrUnsupportedFileType, errorMapping{http.StatusUnsupportedMediaType, "недопустимый тип файла"}},
}

// ErrorHandler обрабатывает ошибки централизованно: известные доменные
// ошибки переводятся в статус и сообщение, всё остальное маскируется.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		for _, m := range errorMappings {
			if errors.Is(err, m.err) {
				c.JSON(m.mapping.status, gin.H{"error": m.mapping.message})
				return
			}
		}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
	}
}
