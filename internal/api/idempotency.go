package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
)

// HeaderIdempotencyKey — HTTP-заголовок ключа идемпотентности.
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultIdempotencyTTL = 24 * time.Hour

// responseRecorder перехватывает тело и статус ответа, чтобы сохранить их
// для повторной выдачи по тому же ключу.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// IdempotencyMiddleware реализует replay-семантику Idempotency-Key для
// небезопасных запросов: первый запрос с ключом выполняется и его ответ
// сохраняется, повторный с тем же ключом и телом получает сохранённый
// ответ без повторного выполнения. Тот же ключ с другим телом — ошибка 422.
func IdempotencyMiddleware(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-middleware")
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || repo == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(c.Request.Method, c.Request.URL.Path, body)

		record, err := repo.CreateProcessing(key, hash, time.Now().UTC().Add(ttl))
		if err != nil {
			if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
				replay(c, record, hash, logger)
				return
			}
			if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
					"error": domain.ErrIdempotencyHashMismatch.Error(),
				})
				return
			}
			logger.WithError(err).Warn("failed to register idempotency key")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency store unavailable"})
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		responseBody := recorder.body.Bytes()
		if status >= http.StatusOK && status < http.StatusInternalServerError {
			if err := repo.MarkDone(key, responseBody, status); err != nil {
				logger.WithError(err).Warn("failed to store idempotent response")
			}
			return
		}
		if err := repo.MarkFailed(key, responseBody, status); err != nil {
			logger.WithError(err).Warn("failed to store failed idempotent response")
		}
	}
}

func replay(c *gin.Context, record domain.IdempotencyRecord, hash string, logger *log.Entry) {
	if record.RequestHash != hash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error": domain.ErrIdempotencyHashMismatch.Error(),
		})
		return
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		// Первый запрос ещё выполняется; клиенту стоит повторить позже.
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		logger.WithField("idempotency_key", record.Key).Debug("replaying stored response")
		c.Abort()
		c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown idempotency record state"})
	}
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
