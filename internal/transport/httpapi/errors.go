package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// mapError переводит ошибки леджера в HTTP-статус и короткое сообщение.
// Исчерпание повторов проверяется раньше нарушения ограничений: такая ошибка оборачивает обе.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuctionOverlap):
		return http.StatusConflict, "auction overlaps an existing auction of the company"
	case errors.Is(err, domain.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, domain.ErrLotNotFound):
		return http.StatusNotFound, "lot not found"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "invalid request details"
	case errors.Is(err, domain.ErrNoViableBid):
		return http.StatusUnprocessableEntity, "no viable starting bid"
	case errors.Is(err, domain.ErrSequenceContention):
		return http.StatusServiceUnavailable, "ledger is busy, retry later"
	case errors.Is(err, domain.ErrConstraintViolation):
		return http.StatusConflict, "ledger constraint violation"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// handleServiceError отвечает клиенту и пишет ошибку в лог с уровнем по статусу.
func handleServiceError(c *gin.Context, logger *log.Entry, handlerName string, err error, fields log.Fields) {
	status, message := mapError(err)
	jsonError(c, status, fmt.Errorf("%s: %w", message, err), message)

	entry := logger.WithFields(fields).WithError(err).WithField("handler", handlerName)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		entry.Error("request failed")
		return
	}
	entry.Warn("request rejected")
}

// handleBindError отвечает 400 на невалидный запрос.
func handleBindError(c *gin.Context, logger *log.Entry, handlerName string, err error) {
	wrapped := fmt.Errorf("invalid request payload: %w", err)
	jsonError(c, http.StatusBadRequest, wrapped, "invalid request payload")
	logger.WithError(err).WithField("handler", handlerName).Warn("binding error")
}
