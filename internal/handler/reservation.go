package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	"github.com/tigerstorage/storage-marketplace/internal/queue"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

// reservationLedger is the slice of *ledger.Ledger the handler uses; an
// interface so tests can substitute a fake.
type reservationLedger interface {
	SubmitRequest(ctx context.Context, listingID, renterID uint64, requestedSpace int64) (uint64, error)
	Decide(ctx context.Context, requestID, ownerID uint64, decision ledger.Decision, approvedSpace int64) error
	CancelRequest(ctx context.Context, requestID, renterID uint64) error
}

// reservationReader is the slice of *repository.ReservationStore the handler
// reads through.
type reservationReader interface {
	ListByRenter(ctx context.Context, renterID uint64) ([]repository.RequestDetail, error)
	ListByListingForOwner(ctx context.Context, listingID, ownerID uint64) ([]repository.RequestDetail, error)
	GetRequestContext(ctx context.Context, requestID uint64) (*repository.RequestContext, error)
}

// ReservationHandler serves the reservation-request lifecycle.  All state
// transitions go through the ledger; this layer only binds requests, maps
// domain errors to HTTP statuses and publishes decided events.
type ReservationHandler struct {
	Ledger  reservationLedger
	Store   reservationReader
	Publish func(ctx context.Context, ev queue.ReservationDecidedEvent) error // nil disables events
}

func NewReservationHandler(l reservationLedger, s reservationReader,
	publish func(ctx context.Context, ev queue.ReservationDecidedEvent) error) *ReservationHandler {
	return &ReservationHandler{Ledger: l, Store: s, Publish: publish}
}

// ----- DTOs -----

type submitRequestReq struct {
	RequestedAmount int64 `json:"requested_amount"`
}

type transitionReq struct {
	Status         string `json:"status"` // approved_full | approved_partial | rejected | cancelled_by_renter
	ApprovedAmount *int64 `json:"approved_amount"`
}

// Submit creates a pending reservation request on the listing in the path.
func (h *ReservationHandler) Submit(c echo.Context) error {
	listingID := pathID(c, "id")
	if listingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	var req submitRequestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	id, err := h.Ledger.SubmitRequest(ctx, listingID, currentUserID(c), req.RequestedAmount)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"request_id": id})
}

// Mine lists the caller's reservation requests.
func (h *ReservationHandler) Mine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reqs, err := h.Store.ListByRenter(ctx, currentUserID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": reqs})
}

// ForListing lists every request against one of the caller's listings.
func (h *ReservationHandler) ForListing(c echo.Context) error {
	listingID := pathID(c, "id")
	if listingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reqs, err := h.Store.ListByListingForOwner(ctx, listingID, currentUserID(c))
	switch {
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your listing"})
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"listing_id": listingID, "requests": reqs})
}

// Transition applies a state change to a pending request.  Owners approve
// (fully or partially) or reject; the original renter cancels.  The target
// state rides in the body's status field.
func (h *ReservationHandler) Transition(c echo.Context) error {
	requestID := pathID(c, "id")
	if requestID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	uid := currentUserID(c)
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case string(ledger.StatusApprovedFull):
		err = h.Ledger.Decide(ctx, requestID, uid, ledger.DecisionApproveFull, 0)
	case string(ledger.StatusApprovedPartial):
		if req.ApprovedAmount == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "approved_amount required"})
		}
		err = h.Ledger.Decide(ctx, requestID, uid, ledger.DecisionApprovePartial, *req.ApprovedAmount)
	case string(ledger.StatusRejected):
		err = h.Ledger.Decide(ctx, requestID, uid, ledger.DecisionReject, 0)
	case string(ledger.StatusCancelledByRenter):
		err = h.Ledger.CancelRequest(ctx, requestID, uid)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	if err != nil {
		return reservationError(c, err)
	}

	h.publishDecided(requestID)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// publishDecided emits a reservation.decided event for a request that just
// left pending.  Failures are swallowed: the transition already committed.
func (h *ReservationHandler) publishDecided(requestID uint64) {
	if h.Publish == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc, err := h.Store.GetRequestContext(ctx, requestID)
	if err != nil {
		return
	}
	_ = h.Publish(ctx, queue.ReservationDecidedEvent{
		RequestID:      rc.Request.ID,
		ListingID:      rc.ListingID,
		ListingTitle:   rc.ListingTitle,
		RenterID:       rc.Request.RenterID,
		LenderID:       rc.OwnerID,
		RequestedSpace: rc.Request.RequestedSpace,
		ApprovedSpace:  rc.Request.ApprovedSpace,
		Status:         rc.Request.Status,
		DecidedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

// reservationError translates ledger errors into HTTP responses.
func reservationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrListingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case errors.Is(err, ledger.ErrRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
	case errors.Is(err, ledger.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized"})
	case errors.Is(err, ledger.ErrBusy):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusConflict, echo.Map{"error": "listing busy, retry"})
	case errors.Is(err, ledger.ErrDuplicatePending):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pending request already exists"})
	case errors.Is(err, ledger.ErrInsufficientSpace):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "insufficient space"})
	case errors.Is(err, ledger.ErrInvalidRequestedSpace):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "requested_amount must be positive"})
	case errors.Is(err, ledger.ErrInvalidApprovedSpace):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid approved_amount"})
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "request already processed"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
	}
}
