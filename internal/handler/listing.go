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

// ListingHandler serves lender-facing listing management.  Capacity changes
// are the ledger's job; the only capacity-touching operation here is the
// guarded total-space edit in Update.
type ListingHandler struct {
	Listings  *repository.ListingRepo
	Interests *repository.InterestRepo
}

func NewListingHandler(l *repository.ListingRepo, i *repository.InterestRepo) *ListingHandler {
	return &ListingHandler{Listings: l, Interests: i}
}

// ----- DTOs -----

type createListingReq struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CostCents   uint32   `json:"cost_cents"`
	TotalSpace  int64    `json:"total_space"`
	StartDate   string   `json:"start_date"` // YYYY-MM-DD
	EndDate     string   `json:"end_date"`   // YYYY-MM-DD
	ImageURL    *string  `json:"image_url"`
}

type updateListingReq struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Location    *string  `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CostCents   *uint32  `json:"cost_cents"`
	TotalSpace  *int64   `json:"total_space"`
	StartDate   *string  `json:"start_date"`
	EndDate     *string  `json:"end_date"`
	ImageURL    *string  `json:"image_url"`
}

type listingResp struct {
	ID             uint64   `json:"id"`
	OwnerID        uint64   `json:"owner_id"`
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	Location       string   `json:"location"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	CostCents      uint32   `json:"cost_cents"`
	TotalSpace     int64    `json:"total_space"`
	RemainingSpace int64    `json:"remaining_space"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	ImageURL       *string  `json:"image_url,omitempty"`
	IsAvailable    bool     `json:"is_available"`
	Withdrawn      bool     `json:"withdrawn"`
	CreatedAt      string   `json:"created_at"`
}

func listingRespOf(l *model.Listing) listingResp {
	return listingResp{
		ID:             l.ID,
		OwnerID:        l.OwnerID,
		Title:          l.Title,
		Description:    l.Description,
		Location:       l.Location,
		Latitude:       l.Latitude,
		Longitude:      l.Longitude,
		CostCents:      l.CostCents,
		TotalSpace:     l.TotalSpace,
		RemainingSpace: l.RemainingSpace,
		StartDate:      l.StartDate.UTC().Format("2006-01-02"),
		EndDate:        l.EndDate.UTC().Format("2006-01-02"),
		ImageURL:       l.ImageURL,
		IsAvailable:    l.IsAvailable,
		Withdrawn:      l.Withdrawn,
		CreatedAt:      l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func listingRespsOf(ls []model.Listing) []listingResp {
	out := make([]listingResp, 0, len(ls))
	for i := range ls {
		out = append(out, listingRespOf(&ls[i]))
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

// Create adds a new listing owned by the caller.
func (h *ListingHandler) Create(c echo.Context) error {
	var req createListingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if req.Title == "" || req.Location == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title/location required"})
	}
	if req.TotalSpace <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "total_space must be positive"})
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_date"})
	}
	end, err := parseDate(req.EndDate)
	if err != nil || end.Before(start) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_date"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Listings.Create(ctx, &model.Listing{
		OwnerID:     currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CostCents:   req.CostCents,
		TotalSpace:  req.TotalSpace,
		StartDate:   start,
		EndDate:     end,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"listing_id": id})
}

// Mine lists the caller's own listings, withdrawn ones included.
func (h *ListingHandler) Mine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ls, err := h.Listings.ListByOwner(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listingRespsOf(ls)})
}

// Update edits a listing the caller owns.  Shrinking total_space below the
// already-approved amount is refused with 409.
func (h *ListingHandler) Update(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	var req updateListingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.TotalSpace != nil && *req.TotalSpace <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "total_space must be positive"})
	}

	upd := repository.ListingUpdate{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CostCents:   req.CostCents,
		TotalSpace:  req.TotalSpace,
		ImageURL:    req.ImageURL,
	}
	if req.StartDate != nil {
		d, err := parseDate(*req.StartDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_date"})
		}
		upd.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDate(*req.EndDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_date"})
		}
		upd.EndDate = &d
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Listings.Update(ctx, id, currentUserID(c), isAdmin(c), upd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your listing"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "total_space below already approved amount"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Withdraw pulls a listing off the market.
func (h *ListingHandler) Withdraw(c echo.Context) error {
	id := pathID(c, "id")
	if id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	err := h.Listings.Withdraw(ctx, id, currentUserID(c), isAdmin(c))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your listing"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "withdraw failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// InterestedRenters shows a lender who bookmarked one of their listings.
func (h *ListingHandler) InterestedRenters(c echo.Context) error {
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
	if l.OwnerID != currentUserID(c) && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your listing"})
	}
	renters, err := h.Interests.RentersForListing(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"listing_id":     id,
		"interest_count": len(renters),
		"renters":        renters,
	})
}
