package sharing

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Transport selects how counterparty updates arrive.
type Transport int

const (
	// TransportPoll fetches on a fixed cadence.
	TransportPoll Transport = iota
	// TransportStream consumes server pushes and falls back to polling.
	TransportStream
)

// subscriber follows the other party's location while the window is open.
// Failures are reported as a nil location.
type subscriber struct {
	api          API
	bookingID    string
	role         string
	clock        clock.Clock
	interval     time.Duration
	fetchTimeout time.Duration
	transport    Transport
	logger       *zap.Logger
}

func (s *subscriber) run(ctx context.Context, deliver func(ctx context.Context, loc *CounterpartyLocation)) {
	if s.transport == TransportStream {
		if s.stream(ctx, deliver) {
			return
		}
		s.logger.Debug("Counterparty stream unavailable, polling", zap.String("bookingID", s.bookingID))
	}
	s.poll(ctx, deliver)
}

// stream consumes pushes until ctx is done (true) or the stream fails (false).
func (s *subscriber) stream(ctx context.Context, deliver func(ctx context.Context, loc *CounterpartyLocation)) bool {
	st, err := s.api.DialCounterpartyStream(ctx, s.bookingID)
	if err != nil {
		s.logger.Debug("Counterparty stream dial failed", zap.Error(err))
		return ctx.Err() != nil
	}
	defer st.Close()

	for {
		loc, err := st.Next()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			s.logger.Debug("Counterparty stream read failed", zap.Error(err))
			deliver(ctx, nil)
			return false
		}
		deliver(ctx, loc)
	}
}

func (s *subscriber) poll(ctx context.Context, deliver func(ctx context.Context, loc *CounterpartyLocation)) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		deliver(ctx, s.fetch(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *subscriber) fetch(ctx context.Context) *CounterpartyLocation {
	reqCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	loc, err := s.api.FetchCounterparty(reqCtx, s.bookingID, s.role)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("Counterparty fetch failed", zap.String("bookingID", s.bookingID), zap.Error(err))
		}
		return nil
	}
	return loc
}
