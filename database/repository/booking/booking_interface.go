package bookingRepo

import (
	"context"
	"errors"

	"snapnow/models"
)

// ErrBookingNotFound is returned when no booking has the requested id.
var ErrBookingNotFound = errors.New("booking not found")

// BookingRepository is the read side of bookings needed by live location.
type BookingRepository interface {
	// GetByID retrieves a booking by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Booking, error)
}
