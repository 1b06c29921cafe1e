package livelocation

import (
	"context"

	"snapnow/models"
)

// Watch is a live feed of the counterparty's location for one caller.
type Watch struct {
	// Role is the caller's role; Events carry the other party's updates.
	Role    string
	Initial *models.LiveLocation
	Events  <-chan models.LiveLocationEvent

	closeFn func() error
}

// Close releases the underlying subscription.
func (w *Watch) Close() error {
	if w.closeFn == nil {
		return nil
	}
	return w.closeFn()
}

// Watch subscribes the caller to the counterparty's location changes.
// The subscription is established before the current value is read so
// that no update between the two is lost.
func (s *DefaultLiveLocationService) Watch(ctx context.Context, bookingID, userID string) (*Watch, error) {
	_, role, err := s.participant(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	other := models.Counterparty(role)

	raw, closeFn, err := s.Locations.Subscribe(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	initial, err := s.Locations.Get(ctx, bookingID, other)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	events := make(chan models.LiveLocationEvent, 16)
	go func() {
		defer close(events)
		for ev := range raw {
			if ev.UserType != other {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Watch{Role: role, Initial: initial, Events: events, closeFn: closeFn}, nil
}
