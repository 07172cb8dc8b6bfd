package ledger

import (
	"context"
	"fmt"
	"time"
)

// Status enumerates the lifecycle states of a reservation request.  Pending
// is the only non-terminal state; a request transitions out of it exactly
// once and is immutable afterwards.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApprovedFull      Status = "approved_full"
	StatusApprovedPartial   Status = "approved_partial"
	StatusRejected          Status = "rejected"
	StatusCancelledByRenter Status = "cancelled_by_renter"
	StatusExpired           Status = "expired"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool { return s != StatusPending }

// Decision enumerates the lender-side transitions out of pending.  Expiry is
// driven by the background sweep rather than a lender, but follows the same
// transition discipline.
type Decision string

const (
	DecisionApproveFull    Decision = "approve_full"
	DecisionApprovePartial Decision = "approve_partial"
	DecisionReject         Decision = "reject"
	DecisionExpire         Decision = "expire"
)

// Listing is the ledger's view of a storage listing.  Only the fields that
// participate in capacity accounting are present; everything else belongs to
// the listing CRUD layer.
type Listing struct {
	ID             uint64
	OwnerID        uint64
	TotalSpace     int64
	RemainingSpace int64
	Available      bool
}

// Request is the ledger's view of a reservation request.
type Request struct {
	ID             uint64
	ListingID      uint64
	RenterID       uint64
	RequestedSpace int64
	ApprovedSpace  *int64
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tx exposes the operations the ledger needs inside a per-listing
// transaction.  Implementations must scope every call to the listing the
// transaction was opened for.
type Tx interface {
	// Listing returns the locked listing row.
	Listing(ctx context.Context) (*Listing, error)
	// PendingExists reports whether the renter already has a pending
	// request on the listing.
	PendingExists(ctx context.Context, renterID uint64) (bool, error)
	// Request returns the request by ID, or ErrRequestNotFound.  The
	// request must belong to the locked listing.
	Request(ctx context.Context, requestID uint64) (*Request, error)
	// InsertRequest creates a new pending request and returns its ID.
	InsertRequest(ctx context.Context, renterID uint64, requestedSpace int64) (uint64, error)
	// FinalizeRequest moves the request out of pending into status, setting
	// approved_amount when approvedSpace is non-nil and bumping updated_at.
	FinalizeRequest(ctx context.Context, requestID uint64, status Status, approvedSpace *int64) error
	// TakeSpace debits amount from the listing's remaining space and
	// recomputes availability.  Fails with ErrInsufficientSpace when amount
	// exceeds the current remaining space.
	TakeSpace(ctx context.Context, amount int64) error
}

// Store is the persistence boundary of the ledger.  InListing runs fn inside
// a transaction that holds an exclusive lock on the listing for its entire
// duration: the lock acquisition, every Tx call, and the commit happen as
// one atomic unit, and fn's error rolls everything back.  A lock that cannot
// be obtained within the store's bounded wait fails with ErrBusy.  Locks on
// different listings must not contend.
type Store interface {
	InListing(ctx context.Context, listingID uint64, fn func(tx Tx) error) error
	// ListingIDOfRequest resolves which listing a request belongs to, so
	// decision paths know which lock to take.  Returns ErrRequestNotFound
	// for unknown requests.
	ListingIDOfRequest(ctx context.Context, requestID uint64) (uint64, error)
}

// Ledger drives the reservation-request lifecycle.  It holds no state of its
// own; all invariants are enforced inside Store transactions.
type Ledger struct {
	store Store
}

// New returns a Ledger backed by the given store.
func New(store Store) *Ledger {
	if store == nil {
		panic("nil store passed to ledger.New")
	}
	return &Ledger{store: store}
}

// SubmitRequest records a renter's ask for space on a listing.  The request
// enters pending without debiting capacity: pending requests hold no soft
// lock, so competing pending requests may jointly exceed the remaining
// space and only the first approval that fits will succeed.
func (l *Ledger) SubmitRequest(ctx context.Context, listingID, renterID uint64, requestedSpace int64) (uint64, error) {
	if requestedSpace <= 0 {
		return 0, ErrInvalidRequestedSpace
	}
	var requestID uint64
	err := l.store.InListing(ctx, listingID, func(tx Tx) error {
		dup, err := tx.PendingExists(ctx, renterID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicatePending
		}
		lst, err := tx.Listing(ctx)
		if err != nil {
			return err
		}
		if !lst.Available || lst.RemainingSpace < requestedSpace {
			return ErrInsufficientSpace
		}
		requestID, err = tx.InsertRequest(ctx, renterID, requestedSpace)
		return err
	})
	if err != nil {
		return 0, err
	}
	return requestID, nil
}

// Decide applies a lender decision to a pending request.  Approvals debit
// the listing's remaining space in the same transaction that finalizes the
// request, so the two either commit together or not at all.  approvedSpace
// is consulted only for partial approvals.
func (l *Ledger) Decide(ctx context.Context, requestID, ownerID uint64, decision Decision, approvedSpace int64) error {
	listingID, err := l.store.ListingIDOfRequest(ctx, requestID)
	if err != nil {
		return err
	}
	return l.store.InListing(ctx, listingID, func(tx Tx) error {
		req, err := tx.Request(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return ErrAlreadyProcessed
		}
		lst, err := tx.Listing(ctx)
		if err != nil {
			return err
		}
		if decision != DecisionExpire && lst.OwnerID != ownerID {
			return ErrNotAuthorized
		}
		switch decision {
		case DecisionApproveFull:
			if lst.RemainingSpace < req.RequestedSpace {
				return ErrInsufficientSpace
			}
			if err := tx.TakeSpace(ctx, req.RequestedSpace); err != nil {
				return err
			}
			amount := req.RequestedSpace
			return tx.FinalizeRequest(ctx, requestID, StatusApprovedFull, &amount)
		case DecisionApprovePartial:
			if approvedSpace <= 0 || approvedSpace > lst.RemainingSpace {
				return ErrInvalidApprovedSpace
			}
			if err := tx.TakeSpace(ctx, approvedSpace); err != nil {
				return err
			}
			amount := approvedSpace
			return tx.FinalizeRequest(ctx, requestID, StatusApprovedPartial, &amount)
		case DecisionReject:
			return tx.FinalizeRequest(ctx, requestID, StatusRejected, nil)
		case DecisionExpire:
			return tx.FinalizeRequest(ctx, requestID, StatusExpired, nil)
		default:
			return fmt.Errorf("unknown decision %q", decision)
		}
	})
}

// CancelRequest lets the original renter withdraw a still-pending request.
// Nothing was reserved while pending, so no capacity changes.
func (l *Ledger) CancelRequest(ctx context.Context, requestID, renterID uint64) error {
	listingID, err := l.store.ListingIDOfRequest(ctx, requestID)
	if err != nil {
		return err
	}
	return l.store.InListing(ctx, listingID, func(tx Tx) error {
		req, err := tx.Request(ctx, requestID)
		if err != nil {
			return err
		}
		if req.RenterID != renterID {
			return ErrNotAuthorized
		}
		if req.Status.Terminal() {
			return ErrAlreadyProcessed
		}
		return tx.FinalizeRequest(ctx, requestID, StatusCancelledByRenter, nil)
	})
}

// ExpireRequest transitions a pending request to expired on behalf of the
// time-based sweep.  Requests already processed are reported as such so the
// sweep can skip them without special casing.
func (l *Ledger) ExpireRequest(ctx context.Context, requestID uint64) error {
	return l.Decide(ctx, requestID, 0, DecisionExpire, 0)
}
