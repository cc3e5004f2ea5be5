package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/service/settlement"
)

// BillingHandlers содержит HTTP-обработчики billing-сервиса.
type BillingHandlers struct {
	service *settlement.Service
	logger  *log.Entry
}

// NewBillingHandlers создаёт обработчики billing-сервиса.
func NewBillingHandlers(service *settlement.Service, logger *log.Entry) *BillingHandlers {
	if logger == nil {
		logger = log.WithField("component", "billing-api")
	}
	return &BillingHandlers{service: service, logger: logger}
}

// Register вешает маршруты billing-сервиса на группу.
func (h *BillingHandlers) Register(group *gin.RouterGroup) {
	group.GET("/billing/:booking_id", h.getBillingRecord)
	group.GET("/users/:user_id/billing", h.listUserRecords)
}

type billingRecordResponse struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	BookingType   string    `json:"booking_type"`
	AmountMinor   int64     `json:"amount_minor"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *BillingHandlers) getBillingRecord(c *gin.Context) {
	record, err := h.service.GetBillingRecord(c.Param("booking_id"))
	if err != nil {
		if errors.Is(err, domain.ErrBillingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("billing lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toBillingRecordResponse(record))
}

func (h *BillingHandlers) listUserRecords(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.service.ListUserRecords(c.Param("user_id"), limit)
	if err != nil {
		h.logger.WithError(err).Error("billing list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	response := make([]billingRecordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, toBillingRecordResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "records": response})
}

func toBillingRecordResponse(record domain.BillingRecord) billingRecordResponse {
	return billingRecordResponse{
		ID:            record.ID,
		BookingID:     record.BookingID,
		UserID:        record.UserID,
		BookingType:   string(record.BookingType),
		AmountMinor:   record.AmountMinor,
		PaymentMethod: record.PaymentMethod,
		Status:        string(record.Status),
		CreatedAt:     record.CreatedAt,
	}
}
