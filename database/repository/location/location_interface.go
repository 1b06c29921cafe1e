package locationRepo

import (
	"context"
	"time"

	"snapnow/models"
)

// LocationRepository stores the last-known location of each booking party
// and fans out changes to live subscribers.
type LocationRepository interface {
	// Save stores loc unless a newer location is already stored for the same
	// party. It reports whether loc was written.
	Save(ctx context.Context, loc *models.LiveLocation, ttl time.Duration) (bool, error)
	// Get returns the stored location, or nil when the party is not sharing.
	Get(ctx context.Context, bookingID, userType string) (*models.LiveLocation, error)
	// Delete clears a party's location. Saves stamped before at are
	// rejected for a while afterwards. Deleting a missing key is not an error.
	Delete(ctx context.Context, bookingID, userType string, at time.Time) error
	// Publish notifies subscribers of bookingID.
	Publish(ctx context.Context, event models.LiveLocationEvent) error
	// Subscribe streams events for bookingID until ctx is done or the
	// returned close function is called.
	Subscribe(ctx context.Context, bookingID string) (<-chan models.LiveLocationEvent, func() error, error)
}
