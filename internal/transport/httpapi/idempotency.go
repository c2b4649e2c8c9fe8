package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

const (
	// IdempotencyKeyHeader: необязательный заголовок POST-запросов.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader помечает ответ, взятый из кэша идемпотентности.
	IdempotentReplayHeader = "Idempotent-Replayed"

	// DefaultIdempotencyTTL: время жизни ключа по умолчанию.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// responseRecorder дублирует тело ответа в буфер для кэша.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotency повторяет сохранённый ответ для уже обработанного Idempotency-Key.
// Ключ привязан к хэшу метода, маршрута и тела запроса.
func idempotency(repo domain.IdempotencyRepository, ttl time.Duration, now func() time.Time, logger *log.Entry) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if repo == nil || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			jsonError(c, http.StatusBadRequest, err, "failed to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		hash := requestHash(c.Request.Method, c.FullPath(), body)
		record, err := repo.CreateProcessing(ctx, key, hash, now().UTC().Add(ttl))
		if err != nil {
			replayIdempotency(c, logger, record, err)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// Итог пишется и после отмены запроса.
		storeCtx := context.WithoutCancel(ctx)
		status := recorder.Status()
		switch {
		case status >= http.StatusInternalServerError:
			// 5xx не кэшируется: повтор с тем же ключом выполняется заново.
			err = repo.Release(storeCtx, key)
		case status >= http.StatusBadRequest:
			err = repo.MarkFailed(storeCtx, key, recorder.body.Bytes(), status)
		default:
			err = repo.MarkDone(storeCtx, key, recorder.body.Bytes(), status)
		}
		if err != nil {
			logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	}
}

func replayIdempotency(c *gin.Context, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		jsonError(c, http.StatusConflict, createErr, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus == 0 || len(record.ResponseBody) == 0 {
				jsonError(c, http.StatusInternalServerError, createErr, "idempotency cache is empty")
				return
			}
			c.Header(IdempotentReplayHeader, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			jsonError(c, http.StatusConflict, createErr, "request with the same idempotency key is already processing")
		default:
			jsonError(c, http.StatusInternalServerError, fmt.Errorf("unknown idempotency status %q", record.Status), "internal server error")
		}
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		jsonError(c, http.StatusInternalServerError, createErr, "failed to initialize idempotency request")
	}
}

func requestHash(method, route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
