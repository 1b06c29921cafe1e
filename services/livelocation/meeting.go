package livelocation

import (
	"context"
	"math"

	"snapnow/models"
	"snapnow/utils"
)

// PartyStatus is one party's position relative to the meeting point.
type PartyStatus struct {
	Location       *models.LiveLocationResponse `json:"location"`
	DistanceMeters *float64                     `json:"distanceMeters,omitempty"`
}

// MeetingStatus summarises where both parties are relative to the meeting point.
type MeetingStatus struct {
	BookingID    string               `json:"bookingId"`
	MeetingPoint *models.MeetingPoint `json:"meetingPoint"`
	Customer     PartyStatus          `json:"customer"`
	Photographer PartyStatus          `json:"photographer"`
}

// MeetingStatus reports both parties' last-known locations and, when the
// booking has a meeting point, their distance to it.
func (s *DefaultLiveLocationService) MeetingStatus(ctx context.Context, bookingID, userID string) (*MeetingStatus, error) {
	booking, _, err := s.participant(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	status := &MeetingStatus{BookingID: bookingID, MeetingPoint: booking.MeetingPoint}

	for _, role := range []string{models.UserTypeCustomer, models.UserTypePhotographer} {
		loc, err := s.Locations.Get(ctx, bookingID, role)
		if err != nil {
			return nil, err
		}
		party := PartyStatus{Location: loc.Response()}
		if loc != nil && booking.MeetingPoint != nil {
			d := utils.HaversineKm(loc.Latitude, loc.Longitude, booking.MeetingPoint.Latitude, booking.MeetingPoint.Longitude) * 1000
			d = math.Round(d)
			party.DistanceMeters = &d
		}
		if role == models.UserTypeCustomer {
			status.Customer = party
		} else {
			status.Photographer = party
		}
	}
	return status, nil
}
