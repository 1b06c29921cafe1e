package models

import (
	"strconv"
	"time"
)

// LiveLocation is the last-known position of one party of a booking.
type LiveLocation struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	UserType  string    `json:"userType"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LiveLocationInput is the body of a location publish.
type LiveLocationInput struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	UserType  string   `json:"userType" binding:"required"`
}

// LiveLocationResponse is what readers receive. Coordinates are sent as
// strings, which existing clients depend on.
type LiveLocationResponse struct {
	Latitude  string    `json:"latitude"`
	Longitude string    `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	UserType  string    `json:"userType"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Response converts a stored location to its wire form.
func (l *LiveLocation) Response() *LiveLocationResponse {
	if l == nil {
		return nil
	}
	return &LiveLocationResponse{
		Latitude:  strconv.FormatFloat(l.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(l.Longitude, 'f', -1, 64),
		Accuracy:  l.Accuracy,
		UserType:  l.UserType,
		UpdatedAt: l.UpdatedAt,
	}
}

// LiveLocationEvent is pushed to stream subscribers. Location is nil when
// the party stopped sharing.
type LiveLocationEvent struct {
	BookingID string                `json:"bookingId"`
	UserType  string                `json:"userType"`
	Location  *LiveLocationResponse `json:"location"`
}

// ExpireLocationPayload is the task payload that clears a booking's
// locations once its sharing window has ended.
type ExpireLocationPayload struct {
	BookingID string `json:"bookingId"`
}
