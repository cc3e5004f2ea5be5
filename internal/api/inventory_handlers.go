package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/service/reservation"
)

// listingTypeRoutes сопоставляет сегмент пути и тип листинга. Спрос
// приходит на эндпоинт конкретного типа, но корректность проверяется по
// самому листингу, а не по пути.
var listingTypeRoutes = map[string]domain.ListingType{
	"flights": domain.ListingTypeFlight,
	"hotels":  domain.ListingTypeHotel,
	"cars":    domain.ListingTypeCar,
}

// InventoryHandlers содержит HTTP-обработчики inventory-сервиса.
type InventoryHandlers struct {
	manager *reservation.Manager
	logger  *log.Entry
}

// NewInventoryHandlers создаёт обработчики inventory-сервиса.
func NewInventoryHandlers(manager *reservation.Manager, logger *log.Entry) *InventoryHandlers {
	if logger == nil {
		logger = log.WithField("component", "inventory-api")
	}
	return &InventoryHandlers{manager: manager, logger: logger}
}

// Register вешает маршруты inventory-сервиса на группу.
func (h *InventoryHandlers) Register(group *gin.RouterGroup, idempotency gin.HandlerFunc) {
	group.POST("/listings", h.createListing)
	group.GET("/listings/:listing_id", h.getListing)

	for segment := range listingTypeRoutes {
		bookings := group.Group("/" + segment)
		if idempotency != nil {
			bookings.POST("/:listing_id/bookings", idempotency, h.createBooking(segment))
		} else {
			bookings.POST("/:listing_id/bookings", h.createBooking(segment))
		}
	}

	group.GET("/bookings/:booking_id", h.getBooking)
	group.GET("/bookings/:booking_id/timeline", h.getTimeline)
}

type createListingRequest struct {
	ID         string `json:"id"`
	Type       string `json:"type" binding:"required"`
	Name       string `json:"name"`
	Capacity   int32  `json:"capacity" binding:"required"`
	PriceMinor int64  `json:"price_minor" binding:"required"`
	Currency   string `json:"currency"`
}

type listingResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Capacity   int32  `json:"capacity"`
	Available  int32  `json:"available"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
}

func (h *InventoryHandlers) createListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	listing, err := h.manager.CreateListing(domain.Listing{
		ID:         req.ID,
		Type:       domain.ListingType(req.Type),
		Name:       req.Name,
		Capacity:   req.Capacity,
		PriceMinor: req.PriceMinor,
		Currency:   currency,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toListingResponse(listing))
}

func (h *InventoryHandlers) getListing(c *gin.Context) {
	listing, err := h.manager.GetListing(c.Param("listing_id"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListingResponse(listing))
}

type createBookingRequest struct {
	UserID        string    `json:"user_id" binding:"required"`
	Quantity      int32     `json:"quantity" binding:"required"`
	TravelDate    time.Time `json:"travel_date" binding:"required"`
	ReturnDate    time.Time `json:"return_date"`
	PaymentMethod string    `json:"payment_method"`
}

type bookingResponse struct {
	BookingID   string     `json:"booking_id"`
	ListingID   string     `json:"listing_id"`
	ListingType string     `json:"listing_type"`
	UserID      string     `json:"user_id"`
	Quantity    int32      `json:"quantity"`
	TravelDate  time.Time  `json:"travel_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	TotalAmount int64      `json:"total_amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (h *InventoryHandlers) createBooking(segment string) gin.HandlerFunc {
	expectedType := listingTypeRoutes[segment]

	return func(c *gin.Context) {
		var req createBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		listingID := c.Param("listing_id")
		listing, err := h.manager.GetListing(listingID)
		if err != nil {
			h.writeDomainError(c, err)
			return
		}
		if listing.Type != expectedType {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing type does not match endpoint"})
			return
		}

		res, err := h.manager.CreateBooking(c.Request.Context(), domain.ReservationRequest{
			UserID:        req.UserID,
			ListingID:     listingID,
			Quantity:      req.Quantity,
			TravelDate:    req.TravelDate,
			ReturnDate:    req.ReturnDate,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			h.writeDomainError(c, err)
			return
		}

		c.JSON(http.StatusCreated, toBookingResponse(res))
	}
}

func (h *InventoryHandlers) getBooking(c *gin.Context) {
	res, err := h.manager.GetBooking(c.Param("booking_id"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(res))
}

func (h *InventoryHandlers) getTimeline(c *gin.Context) {
	bookingID := c.Param("booking_id")
	if _, err := h.manager.GetBooking(bookingID); err != nil {
		h.writeDomainError(c, err)
		return
	}

	events, err := h.manager.Timeline(bookingID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	type timelineEventResponse struct {
		Type     string    `json:"type"`
		Reason   string    `json:"reason,omitempty"`
		Occurred time.Time `json:"occurred_at"`
	}
	response := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": bookingID, "events": response})
}

func (h *InventoryHandlers) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientCapacity),
		errors.Is(err, domain.ErrDatesConflict),
		errors.Is(err, domain.ErrReservationExists),
		errors.Is(err, domain.ErrListingVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrListingRequired),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrTravelDateRequired),
		errors.Is(err, domain.ErrReturnBeforeTravel),
		errors.Is(err, domain.ErrListingTypeInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toListingResponse(listing domain.Listing) listingResponse {
	return listingResponse{
		ID:         listing.ID,
		Type:       string(listing.Type),
		Name:       listing.Name,
		Capacity:   listing.Capacity,
		Available:  listing.Available,
		PriceMinor: listing.PriceMinor,
		Currency:   listing.Currency,
	}
}

func toBookingResponse(res domain.Reservation) bookingResponse {
	response := bookingResponse{
		BookingID:   res.BookingID,
		ListingID:   res.ListingID,
		ListingType: string(res.ListingType),
		UserID:      res.UserID,
		Quantity:    res.Quantity,
		TravelDate:  res.TravelDate,
		TotalAmount: res.AmountMinor,
		Status:      string(res.Status),
		CreatedAt:   res.CreatedAt,
	}
	if !res.ReturnDate.IsZero() {
		rd := res.ReturnDate
		response.ReturnDate = &rd
	}
	return response
}
