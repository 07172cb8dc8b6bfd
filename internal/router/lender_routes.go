package router

import (
	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/handler"
	"github.com/tigerstorage/storage-marketplace/internal/middleware"
	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// RegisterLender registers listing management and the lender side of the
// reservation workflow.
func RegisterLender(e *echo.Echo, l *handler.ListingHandler,
	res *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleLender, model.RoleAdmin))

	g.POST("/listings", l.Create)
	g.GET("/my-listings", l.Mine)
	g.PUT("/listings/:id", l.Update)
	g.DELETE("/listings/:id", l.Withdraw)
	g.GET("/listings/:id/interested-renters", l.InterestedRenters)
	g.GET("/listings/:id/reservation-requests", res.ForListing)
}
