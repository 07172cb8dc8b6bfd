package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

// InterestHandler serves renter bookmarks on listings.
type InterestHandler struct {
	Interests *repository.InterestRepo
}

func NewInterestHandler(i *repository.InterestRepo) *InterestHandler {
	return &InterestHandler{Interests: i}
}

// Add bookmarks a listing for the caller.  Idempotent.
func (h *InterestHandler) Add(c echo.Context) error {
	listingID := pathID(c, "id")
	if listingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Interests.Add(ctx, listingID, currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "add failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Remove drops a bookmark.  Idempotent.
func (h *InterestHandler) Remove(c echo.Context) error {
	listingID := pathID(c, "id")
	if listingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Interests.Remove(ctx, listingID, currentUserID(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "remove failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Mine lists the caller's bookmarked listings.
func (h *InterestHandler) Mine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ls, err := h.Interests.ListByRenter(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listingRespsOf(ls)})
}
