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

// ReviewHandler lets renters rate lenders they have stored with.
type ReviewHandler struct {
	Reviews      *repository.ReviewRepo
	Reservations *repository.ReservationStore
}

func NewReviewHandler(r *repository.ReviewRepo, s *repository.ReservationStore) *ReviewHandler {
	return &ReviewHandler{Reviews: r, Reservations: s}
}

type createReviewReq struct {
	LenderID uint64 `json:"lender_id"`
	Rating   uint8  `json:"rating"`
	Comment  string `json:"comment"`
}

// Create submits a review.  Requires at least one approved reservation
// between the caller and the lender, and allows only one review per pair.
func (h *ReviewHandler) Create(c echo.Context) error {
	var req createReviewReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.LenderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lender_id required"})
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rating must be 1-5"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	renterID := currentUserID(c)
	ok, err := h.Reservations.HasApprovedWithLender(ctx, renterID, req.LenderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "eligibility check failed"})
	}
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no approved reservation with this lender"})
	}

	var comment *string
	if s := strings.TrimSpace(req.Comment); s != "" {
		comment = &s
	}
	id, err := h.Reviews.Create(ctx, &model.LenderReview{
		LenderID: req.LenderID,
		RenterID: renterID,
		Rating:   req.Rating,
		Comment:  comment,
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already reviewed this lender"})
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "lender not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"review_id": id})
}
