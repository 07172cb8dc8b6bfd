package model

import "time"

// ReservationRequest records a renter's ask for part of a listing's space,
// as stored in the `reservation_requests` table.  Status values and the
// transitions between them are owned by the ledger package; rows here are
// only read for display.  ApprovedSpace is set once, on an approval
// transition, and equals RequestedSpace for full approvals.
//
// Fields:
//  ID             – primary key identifier.
//  ListingID      – listing being requested.
//  RenterID       – user who asked for the space.
//  RequestedSpace – square feet asked for, > 0, fixed at creation.
//  ApprovedSpace  – square feet granted (nullable until approval).
//  Status         – pending, approved_full, approved_partial, rejected,
//                   cancelled_by_renter or expired.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – set on every state transition.
type ReservationRequest struct {
	ID             uint64    // reservation_requests.id
	ListingID      uint64    // reservation_requests.listing_id
	RenterID       uint64    // reservation_requests.renter_id
	RequestedSpace int64     // reservation_requests.requested_space
	ApprovedSpace  *int64    // reservation_requests.approved_space (nullable)
	Status         string    // reservation_requests.status
	CreatedAt      time.Time // reservation_requests.created_at
	UpdatedAt      time.Time // reservation_requests.updated_at
}
