package handlers

import (
	"errors"
	"net/http"

	"snapnow/models"
	"snapnow/services/livelocation"
	"snapnow/services/window"
	"snapnow/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LiveLocationHandler serves the live location endpoints of a booking.
type LiveLocationHandler struct {
	Service livelocation.LiveLocationService
}

// NewLiveLocationHandler creates a new LiveLocationHandler.
func NewLiveLocationHandler(svc livelocation.LiveLocationService) *LiveLocationHandler {
	return &LiveLocationHandler{Service: svc}
}

// PublishLocation stores the caller's current position.
func (h *LiveLocationHandler) PublishLocation(c *gin.Context) {
	logger := getLogger(c)
	bookingID := c.Param("id")

	var input models.LiveLocationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Debug("Invalid live location body", zap.String("bookingID", bookingID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	loc, err := h.Service.Publish(c.Request.Context(), bookingID, c.GetString(utils.ContextUserID), input)
	if err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"accuracy":  loc.Accuracy,
		"userType":  loc.UserType,
		"updatedAt": loc.UpdatedAt,
	})
}

// StopSharing clears the caller's last-known location.
func (h *LiveLocationHandler) StopSharing(c *gin.Context) {
	bookingID := c.Param("id")
	if err := h.Service.Clear(c.Request.Context(), bookingID, c.GetString(utils.ContextUserID)); err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location sharing stopped"})
}

// GetCounterpartyLocation returns the other party's location, or null.
func (h *LiveLocationHandler) GetCounterpartyLocation(c *gin.Context) {
	bookingID := c.Param("id")
	loc, err := h.Service.Counterparty(c.Request.Context(), bookingID, c.GetString(utils.ContextUserID))
	if err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	c.JSON(http.StatusOK, loc.Response())
}

// GetPhotographerLocation returns the photographer's location, or null.
func (h *LiveLocationHandler) GetPhotographerLocation(c *gin.Context) {
	bookingID := c.Param("id")
	loc, err := h.Service.PhotographerLocation(c.Request.Context(), bookingID, c.GetString(utils.ContextUserID))
	if err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	c.JSON(http.StatusOK, loc.Response())
}

// respondError maps service errors to HTTP responses.
func (h *LiveLocationHandler) respondError(c *gin.Context, bookingID string, err error) {
	logger := getLogger(c).With(zap.String("bookingID", bookingID))

	var closed *livelocation.WindowClosedError
	switch {
	case errors.As(err, &closed):
		minutes := closed.MinutesUntilAvailable
		c.JSON(http.StatusForbidden, utils.ErrorResponse{
			Error:                 "Live location sharing is available 10 minutes before the session starts",
			MinutesUntilAvailable: &minutes,
		})
	case errors.Is(err, livelocation.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, livelocation.ErrNotParticipant), errors.Is(err, livelocation.ErrUserTypeMismatch):
		logger.Warn("Rejected live location access", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, livelocation.ErrInvalidCoordinates), errors.Is(err, livelocation.ErrInvalidUserType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, livelocation.ErrBookingNotConfirmed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, window.ErrInvalidSchedule):
		logger.Error("Booking has an unparseable schedule", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Booking schedule is invalid"})
	case errors.Is(err, livelocation.ErrSessionEnded):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		logger.Error("Live location request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Please try again later"})
	}
}

// GetMeetingStatus returns both parties' positions relative to the meeting point.
func (h *LiveLocationHandler) GetMeetingStatus(c *gin.Context) {
	bookingID := c.Param("id")
	status, err := h.Service.MeetingStatus(c.Request.Context(), bookingID, c.GetString(utils.ContextUserID))
	if err != nil {
		h.respondError(c, bookingID, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
