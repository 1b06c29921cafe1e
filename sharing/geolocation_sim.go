package sharing

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// SimulatedGeolocator walks randomly around an origin and reports a fix
// every Interval. It stands in for device GPS in the simulator.
type SimulatedGeolocator struct {
	Lat, Lng float64
	// StepMeters bounds how far a single fix moves from the previous one.
	StepMeters float64
	Accuracy   float64
	Interval   time.Duration
	// Deny rejects every watch with a permission error.
	Deny  bool
	Clock clock.Clock

	mu      sync.Mutex
	rnd     *rand.Rand
	watches map[WatchID]context.CancelFunc
}

// NewSimulatedGeolocator returns a geolocator starting at lat, lng.
func NewSimulatedGeolocator(lat, lng float64) *SimulatedGeolocator {
	return &SimulatedGeolocator{
		Lat:        lat,
		Lng:        lng,
		StepMeters: 15,
		Accuracy:   8,
		Interval:   3 * time.Second,
		Clock:      clock.New(),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *SimulatedGeolocator) WatchPosition(onSuccess func(Position), onError func(*PositionError), opts WatchOptions) (WatchID, error) {
	id := WatchID(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	if g.watches == nil {
		g.watches = make(map[WatchID]context.CancelFunc)
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.Clock == nil {
		g.Clock = clock.New()
	}
	g.watches[id] = cancel
	g.mu.Unlock()

	if g.Deny {
		go func() {
			if ctx.Err() == nil {
				onError(&PositionError{Code: CodePermissionDenied, Message: "User denied Geolocation"})
			}
		}()
		return id, nil
	}

	interval := g.Interval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := g.Clock.Ticker(interval)
		defer ticker.Stop()
		for {
			pos := g.next()
			if ctx.Err() != nil {
				return
			}
			onSuccess(pos)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return id, nil
}

func (g *SimulatedGeolocator) ClearWatch(id WatchID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cancel, ok := g.watches[id]; ok {
		cancel()
		delete(g.watches, id)
	}
}

// next moves the walker one step and returns the new fix.
func (g *SimulatedGeolocator) next() Position {
	g.mu.Lock()
	defer g.mu.Unlock()

	bearing := g.rnd.Float64() * 2 * math.Pi
	dist := g.rnd.Float64() * g.StepMeters
	const metersPerDegree = 111_320.0
	g.Lat += dist * math.Cos(bearing) / metersPerDegree
	g.Lng += dist * math.Sin(bearing) / (metersPerDegree * math.Cos(g.Lat*math.Pi/180))

	acc := g.Accuracy
	return Position{Lat: g.Lat, Lng: g.Lng, Accuracy: &acc, Timestamp: g.Clock.Now()}
}
