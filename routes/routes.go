package routes

import (
	"net/http"

	"swiftaid/handlers"
	"swiftaid/utils"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all endpoints for the booking engine. Note there
// is no expire endpoint: expiry is system-invoked only.
func RegisterRoutes(r *gin.Engine, bookingHandler *handlers.BookingHandler, providerHandler *handlers.ProviderHandler) {
	bookings := r.Group("/api/bookings")
	{
		bookings.POST("", bookingHandler.CreateBooking)
		bookings.GET("/:id", bookingHandler.GetBooking)
		bookings.POST("/:id/accept", bookingHandler.AcceptBooking)
		bookings.POST("/:id/decline", bookingHandler.DeclineBooking)
		bookings.POST("/:id/start", bookingHandler.StartBooking)
		bookings.POST("/:id/complete", bookingHandler.CompleteBooking)
		bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
	}

	providers := r.Group("/api/providers")
	{
		providers.GET("/candidates", providerHandler.RankCandidates)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.GetHealthStatus())
	})
}
