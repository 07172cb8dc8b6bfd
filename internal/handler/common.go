// Package handler implements the HTTP endpoints of the storage marketplace.
// Handlers bind requests, delegate to the repositories and the reservation
// ledger, and translate domain errors into HTTP status codes.
package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/middleware"
	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// currentUserID returns the authenticated user ID placed in the context by
// the JWT middleware.
func currentUserID(c echo.Context) uint64 { return middleware.UserID(c) }

// isAdmin reports whether the current request carries the admin role.
func isAdmin(c echo.Context) bool { return middleware.Role(c) == model.RoleAdmin }

// pathID parses a numeric path parameter.  Returns 0 for anything that is
// not a positive integer.
func pathID(c echo.Context, name string) uint64 {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
