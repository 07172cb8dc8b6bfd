// Package ledger implements the reservation-request state machine and the
// capacity accounting for storage listings.  Every operation runs inside a
// per-listing serialized transaction provided by its Store, so concurrent
// submissions and decisions against the same listing cannot observe stale
// remaining space.  All failure modes are reported as the sentinel errors
// below; handlers translate them into HTTP statuses and the ledger itself
// never retries.
package ledger

import "errors"

// ErrListingNotFound is returned when the referenced listing does not exist.
var ErrListingNotFound = errors.New("listing not found")

// ErrRequestNotFound is returned when the referenced reservation request
// does not exist.
var ErrRequestNotFound = errors.New("reservation request not found")

// ErrDuplicatePending is returned when the renter already has a pending
// request on the listing.  At most one pending request may exist per
// (listing, renter) pair.
var ErrDuplicatePending = errors.New("renter already has a pending request on this listing")

// ErrInsufficientSpace is returned when the requested or approved amount
// exceeds the listing's remaining space at decision time.
var ErrInsufficientSpace = errors.New("insufficient remaining space")

// ErrInvalidRequestedSpace is returned when a submission carries a
// non-positive amount.
var ErrInvalidRequestedSpace = errors.New("requested space must be positive")

// ErrInvalidApprovedSpace is returned when a partial approval carries an
// amount that is non-positive or exceeds the remaining space.
var ErrInvalidApprovedSpace = errors.New("approved space must be positive and within remaining space")

// ErrAlreadyProcessed is returned when the request has already left the
// pending state.  Terminal states are final.
var ErrAlreadyProcessed = errors.New("reservation request already processed")

// ErrNotAuthorized is returned when the caller is neither the listing owner
// (for decisions) nor the original renter (for cancellation).
var ErrNotAuthorized = errors.New("not authorized for this reservation request")

// ErrBusy is returned when the per-listing lock could not be obtained within
// the bounded wait.  The operation left no partial state and may be retried.
var ErrBusy = errors.New("listing is busy, retry")
