package sharing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// publisher owns the single geolocation watch of a session and forwards
// each fix to the server. Its methods are called from the session loop.
type publisher struct {
	api           API
	geo           Geolocator
	bookingID     string
	role          string
	opts          WatchOptions
	submitTimeout time.Duration
	stopTimeout   time.Duration
	logger        *zap.Logger

	active  bool
	watchID WatchID
	ctx     context.Context
	cancel  context.CancelFunc
}

// start opens the watch. Callbacks receive the watch's context, which is
// cancelled when the watch is stopped. A second start while active is a no-op.
func (p *publisher) start(parent context.Context, onSample func(ctx context.Context, pos Position), onError func(ctx context.Context, e *PositionError)) error {
	if p.geo == nil {
		return ErrNotSupported
	}
	if p.active {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	id, err := p.geo.WatchPosition(
		func(pos Position) { onSample(ctx, pos) },
		func(e *PositionError) { onError(ctx, e) },
		p.opts,
	)
	if err != nil {
		cancel()
		return err
	}
	p.active = true
	p.watchID = id
	p.ctx = ctx
	p.cancel = cancel
	p.logger.Debug("Geolocation watch started", zap.String("watchID", string(id)))
	return nil
}

// submit posts pos in the background and hands the outcome to done.
// Submissions are not ordered against each other.
func (p *publisher) submit(pos Position, done func(ctx context.Context, err error)) {
	if !p.active {
		return
	}
	ctx := p.ctx
	payload := LocationPayload{Latitude: pos.Lat, Longitude: pos.Lng, Accuracy: pos.Accuracy, UserType: p.role}
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, p.submitTimeout)
		defer cancel()
		done(ctx, p.api.PublishLocation(reqCtx, p.bookingID, payload))
	}()
}

// stop releases the watch and asks the server to forget this device's
// location. It reports whether anything was active.
func (p *publisher) stop() bool {
	if !p.active {
		return false
	}
	p.cancel()
	p.geo.ClearWatch(p.watchID)
	p.logger.Debug("Geolocation watch cleared", zap.String("watchID", string(p.watchID)))
	p.active = false
	p.watchID = ""

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.stopTimeout)
		defer cancel()
		if err := p.api.ClearLocation(ctx, p.bookingID); err != nil {
			p.logger.Debug("Failed to clear live location", zap.String("bookingID", p.bookingID), zap.Error(err))
		}
	}()
	return true
}
