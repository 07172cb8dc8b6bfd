package model

import "time"

// Listing represents a lender's advertised storage space as stored in the
// `listings` table.  TotalSpace is fixed at creation (editable only while it
// stays at or above the committed amount); RemainingSpace is mutated
// exclusively by the reservation ledger when requests are approved.
// IsAvailable is derived: remaining space above zero and the listing not
// withdrawn.
//
// Fields:
//  ID             – primary key identifier.
//  OwnerID        – user ID of the lender; never changes.
//  Title          – short headline for the listing.
//  Description    – optional free-text description.
//  Location       – human-readable address or area.
//  Latitude       – map coordinate (nullable).
//  Longitude      – map coordinate (nullable).
//  CostCents      – monthly price in cents.
//  TotalSpace     – total capacity in square feet, > 0.
//  RemainingSpace – live balance, 0 <= remaining <= total.
//  StartDate      – first day the space is offered.
//  EndDate        – last day the space is offered.
//  ImageURL       – opaque URL of an uploaded photo (nullable).
//  IsAvailable    – derived availability flag.
//  Withdrawn      – set when the lender or an admin pulls the listing.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Listing struct {
	ID             uint64     // listings.id
	OwnerID        uint64     // listings.owner_id
	Title          string     // listings.title
	Description    *string    // listings.description (nullable)
	Location       string     // listings.location
	Latitude       *float64   // listings.latitude (nullable)
	Longitude      *float64   // listings.longitude (nullable)
	CostCents      uint32     // listings.cost_cents
	TotalSpace     int64      // listings.total_space
	RemainingSpace int64      // listings.remaining_space
	StartDate      time.Time  // listings.start_date
	EndDate        time.Time  // listings.end_date
	ImageURL       *string    // listings.image_url (nullable)
	IsAvailable    bool       // listings.is_available
	Withdrawn      bool       // listings.withdrawn
	CreatedAt      time.Time  // listings.created_at
	UpdatedAt      time.Time  // listings.updated_at
}
