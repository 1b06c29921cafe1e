package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Live location endpoints
	PublishLocation            gin.HandlerFunc
	StopSharing                gin.HandlerFunc
	GetCounterpartyLocation    gin.HandlerFunc
	GetPhotographerLocation    gin.HandlerFunc
	StreamCounterpartyLocation gin.HandlerFunc
	GetMeetingStatus           gin.HandlerFunc

	// Health endpoint
	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle assembles the bundle from the live location handler.
func NewHandlerBundle(ll *LiveLocationHandler) *HandlerBundle {
	return &HandlerBundle{
		PublishLocation:            ll.PublishLocation,
		StopSharing:                ll.StopSharing,
		GetCounterpartyLocation:    ll.GetCounterpartyLocation,
		GetPhotographerLocation:    ll.GetPhotographerLocation,
		StreamCounterpartyLocation: ll.StreamCounterpartyLocation,
		GetMeetingStatus:           ll.GetMeetingStatus,
		HealthHandler:              HealthHandler,
	}
}
