package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/model"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

// AdminHandler serves the moderation console: full user and listing views,
// role changes, account deactivation and listing takedowns.
type AdminHandler struct {
	Users    *repository.UserRepo
	Listings *repository.ListingRepo
}

func NewAdminHandler(u *repository.UserRepo, l *repository.ListingRepo) *AdminHandler {
	return &AdminHandler{Users: u, Listings: l}
}

// Users lists every account.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]userPart, 0, len(users))
	for i := range users {
		out = append(out, userPartOf(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// ListListings lists every listing, withdrawn ones included.
func (h *AdminHandler) ListListings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ls, err := h.Listings.ListAll(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listingRespsOf(ls)})
}

type setRoleReq struct {
	Role string `json:"role"`
}

// SetRole changes a user's role.
func (h *AdminHandler) SetRole(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req setRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleRenter && role != model.RoleLender && role != model.RoleAdmin {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Users.SetRole(ctx, id, role)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

type setActiveReq struct {
	Active bool `json:"active"`
}

// SetActive enables or disables an account.
func (h *AdminHandler) SetActive(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req setActiveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetActive(ctx, id, req.Active); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// TakedownListing withdraws any listing, regardless of owner.
func (h *AdminHandler) TakedownListing(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Listings.Withdraw(ctx, id, currentUserID(c), true)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "takedown failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
