package livelocation

import (
	"errors"
	"fmt"

	bookingRepo "snapnow/database/repository/booking"
)

var (
	ErrBookingNotFound     = bookingRepo.ErrBookingNotFound
	ErrNotParticipant      = errors.New("user is not a participant of this booking")
	ErrUserTypeMismatch    = errors.New("userType does not match the caller's role in this booking")
	ErrInvalidUserType     = errors.New("userType must be 'customer' or 'photographer'")
	ErrInvalidCoordinates  = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
	ErrBookingNotConfirmed = errors.New("live location is only available for confirmed bookings")
	ErrSessionEnded        = errors.New("live location sharing has ended for this booking")
)

// WindowClosedError is returned when a location is published before the
// sharing window opens.
type WindowClosedError struct {
	MinutesUntilAvailable int
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("live location sharing opens in %d minute(s)", e.MinutesUntilAvailable)
}
