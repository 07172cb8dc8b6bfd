// Package router wires handlers into the Echo route tree.  Public catalog
// routes carry the Redis response cache as per-route middleware; role-scoped
// groups under /v1 sit behind the JWT middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tigerstorage/storage-marketplace/internal/config"
	"github.com/tigerstorage/storage-marketplace/internal/handler"
	"github.com/tigerstorage/storage-marketplace/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication: the health
// check and the cached public catalog.
func RegisterRoutes(e *echo.Echo, p *handler.PublicHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	cache := middleware.NewRedisCache(cacheCfg, rdb)
	e.GET("/v1/listings", p.Browse, cache)
	e.GET("/v1/listings/:id", p.GetListing, cache)
	e.GET("/v1/lender-reviews/:id", p.LenderReviews, cache)
}

// RegisterAuth registers the auth endpoints and the authenticated profile
// routes.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.GET("/cas/login", a.CASLogin)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.POST("/me/become-lender", a.BecomeLender)
}
