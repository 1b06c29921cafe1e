package models

import "time"

// Booking statuses. Only confirmed bookings may share live location.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
	BookingExpired   = "expired"
)

// Parties of a booking, as sent in the userType field.
const (
	UserTypeCustomer     = "customer"
	UserTypePhotographer = "photographer"
)

// Booking is the read model of a booking created by the booking flow.
type Booking struct {
	ID             string        `bson:"id" json:"id"`
	CustomerID     string        `bson:"customer_id" json:"customerId"`
	PhotographerID string        `bson:"photographer_id" json:"photographerId"`
	ScheduledDate  string        `bson:"scheduled_date" json:"scheduledDate"` // "YYYY-MM-DD"
	ScheduledTime  string        `bson:"scheduled_time" json:"scheduledTime"` // free text, "2:30 PM" or "14:30"
	Status         string        `bson:"status" json:"status"`
	MeetingPoint   *MeetingPoint `bson:"meeting_point,omitempty" json:"meetingPoint,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
}

// MeetingPoint is where the photo session is supposed to start.
type MeetingPoint struct {
	Name      string  `bson:"name" json:"name"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// RoleOf returns which party userID is in the booking, or "".
func (b *Booking) RoleOf(userID string) string {
	switch {
	case userID == "":
		return ""
	case userID == b.CustomerID:
		return UserTypeCustomer
	case userID == b.PhotographerID:
		return UserTypePhotographer
	}
	return ""
}

// Counterparty returns the other party's user type.
func Counterparty(userType string) string {
	if userType == UserTypeCustomer {
		return UserTypePhotographer
	}
	return UserTypeCustomer
}

// ValidUserType reports whether t names a booking party.
func ValidUserType(t string) bool {
	return t == UserTypeCustomer || t == UserTypePhotographer
}
