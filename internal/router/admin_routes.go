package router

import (
	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/handler"
	"github.com/tigerstorage/storage-marketplace/internal/middleware"
	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// RegisterAdmin registers the moderation console.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))

	g.GET("/users", a.ListUsers)
	g.PATCH("/users/:id/role", a.SetRole)
	g.PATCH("/users/:id/active", a.SetActive)
	g.GET("/listings", a.ListListings)
	g.DELETE("/listings/:id", a.TakedownListing)
}
