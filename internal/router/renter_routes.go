package router

import (
	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/handler"
	"github.com/tigerstorage/storage-marketplace/internal/middleware"
	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// RegisterRenter registers the renter-facing routes: submitting and
// cancelling reservation requests, bookmarks, reviews and the image upload
// used by every authenticated audience.  Lenders and admins may also rent.
func RegisterRenter(e *echo.Echo, res *handler.ReservationHandler,
	in *handler.InterestHandler, rev *handler.ReviewHandler,
	up *handler.UploadHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleRenter, model.RoleLender, model.RoleAdmin))

	g.POST("/listings/:id/reserve", res.Submit)
	g.GET("/my-reservation-requests", res.Mine)
	// The renter cancellation path shares the transition endpoint with the
	// lender decisions; the ledger decides who may do what.
	g.PATCH("/reservation-requests/:id", res.Transition)

	g.POST("/listings/:id/interest", in.Add)
	g.DELETE("/listings/:id/interest", in.Remove)
	g.GET("/my-interested-listings", in.Mine)

	g.POST("/lender-reviews", rev.Create)
	g.POST("/upload", up.Image)
}
