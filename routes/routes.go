package routes

import (
	"snapnow/handlers"
	"snapnow/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterLiveLocationRoutes sets up the live location endpoints of a booking.
func RegisterLiveLocationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	bookingGroup := r.Group("/api/bookings/:id")
	{
		bookingGroup.Use(middleware.SessionAuthMiddleware())
		bookingGroup.POST("/live-location", hb.PublishLocation)
		bookingGroup.DELETE("/live-location", hb.StopSharing)
		bookingGroup.GET("/live-location", hb.GetCounterpartyLocation)
		bookingGroup.GET("/live-location/ws", hb.StreamCounterpartyLocation)
		bookingGroup.GET("/photographer-location", hb.GetPhotographerLocation)
		bookingGroup.GET("/meeting-point", hb.GetMeetingStatus)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(middleware.CORSMiddleware())

	RegisterHealthRoute(r, hb)
	RegisterLiveLocationRoutes(r, hb)
}
