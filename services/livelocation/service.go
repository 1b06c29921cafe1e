package livelocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	bookingRepo "snapnow/database/repository/booking"
	locationRepo "snapnow/database/repository/location"
	"snapnow/models"
	"snapnow/services/tasks"
	"snapnow/services/window"

	"github.com/benbjohnson/clock"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// LiveLocationService is the server side of live location sharing.
type LiveLocationService interface {
	Publish(ctx context.Context, bookingID, userID string, in models.LiveLocationInput) (*models.LiveLocation, error)
	Clear(ctx context.Context, bookingID, userID string) error
	Counterparty(ctx context.Context, bookingID, userID string) (*models.LiveLocation, error)
	PhotographerLocation(ctx context.Context, bookingID, userID string) (*models.LiveLocation, error)
	Watch(ctx context.Context, bookingID, userID string) (*Watch, error)
	MeetingStatus(ctx context.Context, bookingID, userID string) (*MeetingStatus, error)
	Expire(ctx context.Context, bookingID string) error
}

// TaskEnqueuer is the part of *asynq.Client the service uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DefaultLiveLocationService implements LiveLocationService.
type DefaultLiveLocationService struct {
	Bookings    bookingRepo.BookingRepository
	Locations   locationRepo.LocationRepository
	Tasks       TaskEnqueuer // optional
	Clock       clock.Clock
	Zone        *time.Location
	TTL         time.Duration
	ClosePolicy window.ClosePolicy
	Logger      *zap.Logger

	scheduled sync.Map // booking ids with an expiry task enqueued by this process
}

func (s *DefaultLiveLocationService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *DefaultLiveLocationService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// participant loads the booking and resolves the caller's role in it.
func (s *DefaultLiveLocationService) participant(ctx context.Context, bookingID, userID string) (*models.Booking, string, error) {
	booking, err := s.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	role := booking.RoleOf(userID)
	if role == "" {
		return nil, "", ErrNotParticipant
	}
	return booking, role, nil
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lng) <= 180
}

// Publish validates and stores a location sample for the caller. The
// window is re-evaluated with the server clock; a client that believes
// the window is open may still be told how many minutes remain.
func (s *DefaultLiveLocationService) Publish(ctx context.Context, bookingID, userID string, in models.LiveLocationInput) (*models.LiveLocation, error) {
	if in.Latitude == nil || in.Longitude == nil || !validCoordinates(*in.Latitude, *in.Longitude) {
		return nil, ErrInvalidCoordinates
	}
	if !models.ValidUserType(in.UserType) {
		return nil, ErrInvalidUserType
	}

	booking, role, err := s.participant(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	if role != in.UserType {
		return nil, ErrUserTypeMismatch
	}
	if booking.Status != models.BookingConfirmed {
		return nil, ErrBookingNotConfirmed
	}

	now := s.now()
	start, err := window.SessionStart(booking.ScheduledDate, booking.ScheduledTime, s.Zone)
	if err != nil {
		return nil, err
	}
	w := window.Evaluate(start, now, s.ClosePolicy)
	if w.Ended {
		return nil, ErrSessionEnded
	}
	if !w.Open {
		return nil, &WindowClosedError{MinutesUntilAvailable: *w.MinutesUntilAvailable}
	}

	loc := &models.LiveLocation{
		BookingID: bookingID,
		UserID:    userID,
		UserType:  role,
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		Accuracy:  in.Accuracy,
		UpdatedAt: now.UTC(),
	}
	written, err := s.Locations.Save(ctx, loc, s.TTL)
	if err != nil {
		return nil, err
	}
	if !written {
		// A newer sample from the same device already landed.
		s.logger().Debug("Discarded out-of-order location",
			zap.String("bookingID", bookingID), zap.String("userType", role))
		return loc, nil
	}

	s.publish(ctx, bookingID, role, loc)
	s.scheduleExpiry(ctx, bookingID, start)
	return loc, nil
}

// Clear removes the caller's last-known location.
func (s *DefaultLiveLocationService) Clear(ctx context.Context, bookingID, userID string) error {
	_, role, err := s.participant(ctx, bookingID, userID)
	if err != nil {
		return err
	}
	if err := s.Locations.Delete(ctx, bookingID, role, s.now()); err != nil {
		return err
	}
	s.publish(ctx, bookingID, role, nil)
	return nil
}

// Counterparty returns the other party's location, or nil when they are
// not sharing.
func (s *DefaultLiveLocationService) Counterparty(ctx context.Context, bookingID, userID string) (*models.LiveLocation, error) {
	_, role, err := s.participant(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	return s.Locations.Get(ctx, bookingID, models.Counterparty(role))
}

// PhotographerLocation returns the photographer's location to any participant.
func (s *DefaultLiveLocationService) PhotographerLocation(ctx context.Context, bookingID, userID string) (*models.LiveLocation, error) {
	if _, _, err := s.participant(ctx, bookingID, userID); err != nil {
		return nil, err
	}
	return s.Locations.Get(ctx, bookingID, models.UserTypePhotographer)
}

// Expire clears both parties' locations. It runs as a background task
// once the window has ended.
func (s *DefaultLiveLocationService) Expire(ctx context.Context, bookingID string) error {
	var errs []error
	now := s.now()
	for _, role := range []string{models.UserTypeCustomer, models.UserTypePhotographer} {
		if err := s.Locations.Delete(ctx, bookingID, role, now); err != nil {
			errs = append(errs, err)
			continue
		}
		s.publish(ctx, bookingID, role, nil)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("expire live locations for booking %s: %w", bookingID, err)
	}
	s.scheduled.Delete(bookingID)
	s.logger().Info("Expired live locations", zap.String("bookingID", bookingID))
	return nil
}

func (s *DefaultLiveLocationService) publish(ctx context.Context, bookingID, role string, loc *models.LiveLocation) {
	event := models.LiveLocationEvent{BookingID: bookingID, UserType: role, Location: loc.Response()}
	if err := s.Locations.Publish(ctx, event); err != nil {
		// Pollers still see the stored value.
		s.logger().Warn("Failed to fan out live location",
			zap.String("bookingID", bookingID), zap.Error(err))
	}
}

func (s *DefaultLiveLocationService) scheduleExpiry(ctx context.Context, bookingID string, start time.Time) {
	if s.Tasks == nil || s.ClosePolicy.After <= 0 {
		return
	}
	if _, loaded := s.scheduled.LoadOrStore(bookingID, struct{}{}); loaded {
		return
	}
	task, opts, err := tasks.NewExpireLocationTask(bookingID, start.Add(s.ClosePolicy.After))
	if err != nil {
		s.logger().Error("Failed to build expiry task", zap.String("bookingID", bookingID), zap.Error(err))
		return
	}
	if _, err := s.Tasks.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		s.scheduled.Delete(bookingID)
		s.logger().Warn("Failed to schedule live location expiry",
			zap.String("bookingID", bookingID), zap.Error(err))
	}
}
