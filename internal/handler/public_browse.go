package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

// PublicHandler serves the unauthenticated catalog: browsing available
// listings and per-lender reviews.  These routes sit behind the Redis
// response cache.
type PublicHandler struct {
	Listings *repository.ListingRepo
	Reviews  *repository.ReviewRepo
}

func NewPublicHandler(l *repository.ListingRepo, r *repository.ReviewRepo) *PublicHandler {
	return &PublicHandler{Listings: l, Reviews: r}
}

// Browse returns the listing catalog.  Optional query params: available
// ("false" widens to unavailable listings), max_cost (cents), min_space and
// location (substring match).
func (h *PublicHandler) Browse(c echo.Context) error {
	var f repository.ListingFilter
	if v := c.QueryParam("available"); v == "false" || v == "0" {
		f.IncludeUnavailable = true
	}
	if v := c.QueryParam("max_cost"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid max_cost"})
		}
		f.MaxCostCents = uint32(n)
	}
	if v := c.QueryParam("min_space"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid min_space"})
		}
		f.MinSpace = n
	}
	f.Location = c.QueryParam("location")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ls, err := h.Listings.Browse(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "browse failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listingRespsOf(ls)})
}

// GetListing returns one listing's public detail.
func (h *PublicHandler) GetListing(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Listings.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	if l.Withdrawn {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, listingRespOf(l))
}

// LenderReviews returns a lender's reviews and average rating.
func (h *PublicHandler) LenderReviews(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lender id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reviews, avg, err := h.Reviews.ListForLender(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lender_id":      id,
		"average_rating": avg,
		"reviews":        reviews,
	})
}
