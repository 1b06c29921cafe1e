package sharing

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotSupported means the platform has no geolocation capability.
var ErrNotSupported = errors.New("geolocation is not supported on this device")

// Position is one fix reported by the platform.
type Position struct {
	Lat       float64
	Lng       float64
	Accuracy  *float64
	Timestamp time.Time
}

// PositionErrorCode follows the W3C geolocation error codes.
type PositionErrorCode int

const (
	CodePermissionDenied    PositionErrorCode = 1
	CodePositionUnavailable PositionErrorCode = 2
	CodeTimeout             PositionErrorCode = 3
)

func (c PositionErrorCode) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission denied"
	case CodePositionUnavailable:
		return "position unavailable"
	case CodeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// PositionError is delivered to a watch's error callback.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return "geolocation: " + e.Code.String()
	}
	return "geolocation: " + e.Message
}

// WatchOptions mirrors the options of a platform position watch.
type WatchOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

// DefaultWatchOptions asks for high accuracy fixes no older than 5s, each
// within 10s.
var DefaultWatchOptions = WatchOptions{
	EnableHighAccuracy: true,
	Timeout:            10 * time.Second,
	MaximumAge:         5 * time.Second,
}

// WatchID identifies an active watch.
type WatchID string

// Geolocator is the platform's continuous position capability.
//
// Callbacks run on a goroutine owned by the implementation and must not be
// invoked synchronously from inside WatchPosition. After ClearWatch returns
// no new callbacks may start for that id.
type Geolocator interface {
	WatchPosition(onSuccess func(Position), onError func(*PositionError), opts WatchOptions) (WatchID, error)
	ClearWatch(id WatchID)
}
