package routes

import (
	"islebook/booking"
	"islebook/middleware"
	"islebook/ratelim"
	"islebook/rules"
	"islebook/slots"
	"islebook/waitlist"

	"github.com/julienschmidt/httprouter"
)

// Handlers bundles the wired-up domain handlers so main only threads one
// value through route registration.
type Handlers struct {
	Rules    *rules.Handler
	Slots    *slots.Handler
	Waitlist *waitlist.Handler
	Bookings *booking.Handler
}

func RoutesWrapper(router *httprouter.Router, rl *ratelim.RateLimiter, h Handlers) {
	AddRuleRoutes(router, rl, h.Rules)
	AddSlotRoutes(router, rl, h.Slots)
	AddWaitlistRoutes(router, rl, h.Waitlist)
	AddBookingRoutes(router, rl, h.Bookings)
}

func AddRuleRoutes(router *httprouter.Router, rl *ratelim.RateLimiter, h *rules.Handler) {
	router.POST("/api/rules", middleware.Authenticate(middleware.RequireRole(h.CreateRule, "vendor", "admin")))
	router.GET("/api/rules/:id", middleware.Authenticate(h.GetRule))
	router.PATCH("/api/rules/:id", middleware.Authenticate(middleware.RequireRole(h.UpdateRule, "vendor", "admin")))
	router.DELETE("/api/rules/:id", middleware.Authenticate(middleware.RequireRole(h.DeleteRule, "vendor", "admin")))
	router.GET("/api/listings/:listingId/rules", middleware.Authenticate(h.ListRules))
}

func AddSlotRoutes(router *httprouter.Router, rl *ratelim.RateLimiter, h *slots.Handler) {
	router.POST("/api/slots", rl.Limit(middleware.Authenticate(middleware.RequireRole(h.CreateSlot, "vendor", "admin"))))
	router.GET("/api/slots/:id", middleware.OptionalAuth(h.GetSlot))
	router.GET("/api/slots/:id/availability", middleware.OptionalAuth(h.GetAvailability))
	router.GET("/api/listings/:listingId/slots", middleware.OptionalAuth(h.ListSlots))
	router.POST("/api/rules/:id/generate", middleware.Authenticate(middleware.RequireRole(h.GenerateSlots, "vendor", "admin")))
	router.PATCH("/api/slots/:id/block", middleware.Authenticate(middleware.RequireRole(h.BlockSlot, "vendor", "admin")))
	router.PATCH("/api/slots/:id/unblock", middleware.Authenticate(middleware.RequireRole(h.UnblockSlot, "vendor", "admin")))
	router.PATCH("/api/slots/:id/cancel", middleware.Authenticate(middleware.RequireRole(h.CancelSlot, "vendor", "admin")))
	router.GET("/ws/listings/:listingId", slots.HandleWS)
}

func AddWaitlistRoutes(router *httprouter.Router, rl *ratelim.RateLimiter, h *waitlist.Handler) {
	router.POST("/api/slots/:id/waitlist", rl.Limit(middleware.Authenticate(h.Join)))
	router.DELETE("/api/waitlist/:id", middleware.Authenticate(h.Leave))
	router.GET("/api/waitlist/:id/position", middleware.Authenticate(h.Position))
	router.POST("/api/waitlist/expire-stale", middleware.Authenticate(middleware.RequireRole(h.ExpireStale, "admin")))
}

func AddBookingRoutes(router *httprouter.Router, rl *ratelim.RateLimiter, h *booking.Handler) {
	router.POST("/api/bookings", rl.Limit(middleware.Authenticate(h.CreateBooking)))
	router.DELETE("/api/bookings/:id", middleware.Authenticate(h.CancelBooking))
	router.GET("/api/bookings", middleware.Authenticate(h.ListMyBookings))
	router.GET("/api/slots/:id/bookings", middleware.Authenticate(middleware.RequireRole(h.ListSlotBookings, "vendor", "admin")))
}
