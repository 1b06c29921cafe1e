// Package sharing is the device side of live location sharing: it gates
// sharing on the booking's window, publishes this device's position and
// follows the other party's.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"snapnow/services/window"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	RoleCustomer     = "customer"
	RolePhotographer = "photographer"

	// DefaultPollInterval is the counterparty polling cadence.
	DefaultPollInterval = 15 * time.Second
)

var (
	ErrAlreadyMounted = errors.New("session already mounted")
	ErrNotMounted     = errors.New("session not mounted")
)

// API is the server surface a session depends on. *Client implements it.
type API interface {
	PublishLocation(ctx context.Context, bookingID string, p LocationPayload) error
	ClearLocation(ctx context.Context, bookingID string) error
	FetchCounterparty(ctx context.Context, bookingID, role string) (*CounterpartyLocation, error)
	DialCounterpartyStream(ctx context.Context, bookingID string) (CounterpartyStream, error)
}

// Options configures a Session. Zero durations take their defaults.
type Options struct {
	BookingID     string
	Role          string
	ScheduledDate string
	ScheduledTime string
	Zone          *time.Location
	ClosePolicy   window.ClosePolicy

	EvaluationInterval time.Duration
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	Transport          Transport
	WatchOptions       *WatchOptions

	Clock  clock.Clock
	Logger *zap.Logger

	OnLocationUpdate     func(*Position)
	OnOtherPartyLocation func(*CounterpartyLocation)
	OnStateChange        func(Status)
}

// Session is one mounted live location panel for one booking and role.
//
// All state changes run on a single loop goroutine. Callbacks are invoked
// in order on a separate goroutine and may call back into the Session.
// No callback fires once Unmount has been called.
type Session struct {
	opts   Options
	clock  clock.Clock
	logger *zap.Logger

	pub  *publisher
	sub  *subscriber
	eval *evaluator

	events   chan func()
	notify   *notifier
	mountMu  sync.Mutex
	mounted  bool
	torn     atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	statusMu sync.RWMutex
	status   Status

	// loop-owned
	m           machine
	autoStarted bool
	windowOpen  bool
	evalTask    *task
	subTask     *task

	afterEvaluate func() // test hook, runs on the loop
}

// NewSession validates opts and builds an unmounted session.
func NewSession(api API, geo Geolocator, opts Options) (*Session, error) {
	if api == nil {
		return nil, errors.New("api is required")
	}
	if opts.BookingID == "" {
		return nil, errors.New("booking id is required")
	}
	if opts.Role != RoleCustomer && opts.Role != RolePhotographer {
		return nil, fmt.Errorf("invalid role %q", opts.Role)
	}
	if opts.Zone == nil {
		opts.Zone = time.Local
	}
	if opts.EvaluationInterval <= 0 {
		opts.EvaluationInterval = window.DefaultEvaluationInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	watchOpts := DefaultWatchOptions
	if opts.WatchOptions != nil {
		watchOpts = *opts.WatchOptions
	}

	logger := opts.Logger.With(zap.String("bookingID", opts.BookingID), zap.String("role", opts.Role))
	s := &Session{
		opts:   opts,
		clock:  opts.Clock,
		logger: logger,
		events: make(chan func(), 16),
	}
	s.pub = &publisher{
		api:           api,
		geo:           geo,
		bookingID:     opts.BookingID,
		role:          opts.Role,
		opts:          watchOpts,
		submitTimeout: opts.RequestTimeout,
		stopTimeout:   opts.RequestTimeout,
		logger:        logger,
	}
	s.sub = &subscriber{
		api:          api,
		bookingID:    opts.BookingID,
		role:         opts.Role,
		clock:        opts.Clock,
		interval:     opts.PollInterval,
		fetchTimeout: opts.RequestTimeout,
		transport:    opts.Transport,
		logger:       logger,
	}
	s.eval = &evaluator{
		clock:    opts.Clock,
		interval: opts.EvaluationInterval,
		evaluate: func(now time.Time) (window.Window, error) {
			return window.EvaluateSchedule(opts.ScheduledDate, opts.ScheduledTime, now, opts.Zone, opts.ClosePolicy)
		},
	}
	s.status = s.m.snapshot()
	return s, nil
}

// Mount starts the window evaluator. Publishing and polling follow from it.
func (s *Session) Mount(ctx context.Context) error {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()
	if s.mounted || s.torn.Load() {
		return ErrAlreadyMounted
	}
	s.mounted = true

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})
	s.notify = newNotifier(&s.torn)
	go s.notify.run(s.ctx)
	go s.loop()

	s.evalTask = startTask(s.ctx, func(ctx context.Context) {
		s.eval.run(ctx, func(ctx context.Context, w window.Window, err error) {
			s.post(ctx, func() { s.onEvaluated(w, err) })
		})
	})
	s.logger.Debug("Live location session mounted", zap.String("closePolicy", s.opts.ClosePolicy.String()))
	return nil
}

// Unmount stops every loop and releases the watch. It is safe to call
// more than once, and from a callback. Cancelling the context passed to
// Mount has the same effect.
func (s *Session) Unmount() {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()
	if !s.mounted {
		s.torn.Store(true)
		return
	}
	s.mounted = false
	s.torn.Store(true)
	s.cancel()
	<-s.loopDone
	s.logger.Debug("Live location session unmounted")
}

// StartSharing starts publishing on request. It has no effect unless the
// window is open; a previous permission denial is retried.
func (s *Session) StartSharing() error {
	return s.call(func() error {
		if !s.windowOpen || s.m.hasEnded {
			return errors.New("live location sharing is not available yet")
		}
		s.m.denied = false
		s.startPublisher()
		return nil
	})
}

// StopSharing stops publishing. Calling it while nothing is shared changes nothing.
func (s *Session) StopSharing() error {
	return s.call(func() error {
		s.stopPublisher(true)
		return nil
	})
}

// Status returns the latest snapshot.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// call runs fn on the loop and waits for it.
func (s *Session) call(fn func() error) error {
	s.mountMu.Lock()
	mounted := s.mounted
	s.mountMu.Unlock()
	if !mounted {
		return ErrNotMounted
	}
	result := make(chan error, 1)
	if !s.post(s.ctx, func() { result <- fn() }) {
		return ErrNotMounted
	}
	select {
	case err := <-result:
		return err
	case <-s.loopDone:
		return ErrNotMounted
	}
}

// post queues fn on the loop. fn is dropped if ctx ends first.
func (s *Session) post(ctx context.Context, fn func()) bool {
	if ctx.Err() != nil {
		return false
	}
	wrapped := func() {
		if ctx.Err() == nil {
			fn()
		}
	}
	select {
	case s.events <- wrapped:
		return true
	case <-ctx.Done():
		return false
	case <-s.loopDone:
		return false
	}
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.ctx.Done():
			s.torn.Store(true)
			s.teardown()
			return
		}
	}
}

func (s *Session) onEvaluated(w window.Window, err error) {
	s.m.windowEvaluated(w, err, s.clock.Now())

	switch {
	case err != nil:
		s.logger.Warn("Booking schedule is invalid", zap.Error(err))
		s.windowOpen = false
		s.stopSubscriber()
	case w.Ended:
		s.windowOpen = false
		s.endSession()
	case w.Open:
		s.windowOpen = true
		s.startSubscriber()
		if !s.autoStarted && !s.m.denied {
			s.autoStarted = true
			s.startPublisher()
		}
	default:
		s.windowOpen = false
		s.stopSubscriber()
	}
	s.publishStatus()
	if s.afterEvaluate != nil {
		s.afterEvaluate()
	}
}

func (s *Session) startPublisher() {
	err := s.pub.start(s.ctx, s.onSample, s.onPositionError)
	switch {
	case errors.Is(err, ErrNotSupported):
		s.logger.Info("Geolocation is not available on this device")
		s.m.unsupported()
	case err != nil:
		s.m.positionFailed(&PositionError{Code: CodePositionUnavailable, Message: err.Error()})
	default:
		s.m.watchStarted()
	}
	s.publishStatus()
}

func (s *Session) stopPublisher(manual bool) {
	if !s.pub.stop() {
		return
	}
	s.m.stopped(manual)
	s.emit(func() {
		if s.opts.OnLocationUpdate != nil {
			s.opts.OnLocationUpdate(nil)
		}
	})
	s.publishStatus()
}

func (s *Session) endSession() {
	if !s.m.hasEnded {
		s.logger.Info("Live location session ended")
	}
	s.m.ended()
	s.stopSubscriber()
	s.stopPublisher(false)
	s.publishStatus()
}

// onSample and onPositionError run on the geolocator's goroutine.
func (s *Session) onSample(ctx context.Context, pos Position) {
	s.post(ctx, func() {
		p := pos
		s.m.sampleReceived(p)
		s.emit(func() {
			if s.opts.OnLocationUpdate != nil {
				s.opts.OnLocationUpdate(&p)
			}
		})
		s.publishStatus()
		s.pub.submit(p, func(ctx context.Context, err error) {
			s.post(ctx, func() { s.onSubmitted(err) })
		})
	})
}

func (s *Session) onPositionError(ctx context.Context, e *PositionError) {
	s.post(ctx, func() {
		if e.Code == CodePermissionDenied {
			s.logger.Info("Location permission denied")
			s.m.permissionDenied()
			s.stopPublisher(false)
		} else {
			s.logger.Debug("Transient geolocation error", zap.Stringer("code", e.Code), zap.String("message", e.Message))
			s.m.positionFailed(e)
		}
		s.publishStatus()
	})
}

func (s *Session) onSubmitted(err error) {
	var subErr *SubmissionError
	switch {
	case err == nil:
		s.m.submissionSucceeded()
	case errors.As(err, &subErr) && subErr.MinutesUntilAvailable != nil:
		s.logger.Info("Server reports the window is not open yet", zap.Int("minutesUntilAvailable", *subErr.MinutesUntilAvailable))
		s.m.serverTooEarly(*subErr.MinutesUntilAvailable, s.clock.Now())
	case errors.As(err, &subErr) && subErr.Status == 410:
		s.m.submissionFailed(subErr.Message)
		s.endSession()
	case errors.As(err, &subErr):
		s.m.submissionFailed(subErr.Message)
	default:
		s.logger.Debug("Location submission failed", zap.Error(err))
		s.m.submissionFailed("Could not reach the server to share your location")
	}
	s.publishStatus()
}

func (s *Session) startSubscriber() {
	if s.subTask != nil {
		return
	}
	s.subTask = startTask(s.ctx, func(ctx context.Context) {
		s.sub.run(ctx, func(ctx context.Context, loc *CounterpartyLocation) {
			s.post(ctx, func() {
				s.emit(func() {
					if s.opts.OnOtherPartyLocation != nil {
						s.opts.OnOtherPartyLocation(loc)
					}
				})
			})
		})
	})
}

func (s *Session) stopSubscriber() {
	s.subTask.Stop()
	s.subTask = nil
}

// teardown runs on the loop once the session context is done.
func (s *Session) teardown() {
	s.evalTask.Stop()
	s.evalTask = nil
	s.stopSubscriber()
	s.pub.stop()
}

func (s *Session) publishStatus() {
	next := s.m.snapshot()
	s.statusMu.Lock()
	changed := !sameStatus(s.status, next)
	s.status = next
	s.statusMu.Unlock()
	if changed {
		s.emit(func() {
			if s.opts.OnStateChange != nil {
				s.opts.OnStateChange(next)
			}
		})
	}
}

func (s *Session) emit(fn func()) {
	s.notify.push(fn)
}

// notifier runs callbacks in order on its own goroutine.
type notifier struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	torn  *atomic.Bool
}

func newNotifier(torn *atomic.Bool) *notifier {
	return &notifier{wake: make(chan struct{}, 1), torn: torn}
}

func (n *notifier) push(fn func()) {
	if n.torn.Load() {
		return
	}
	n.mu.Lock()
	n.queue = append(n.queue, fn)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.wake:
		}
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			fn := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()
			if n.torn.Load() {
				return
			}
			fn()
		}
	}
}
