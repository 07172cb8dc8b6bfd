package model

import "time"

// LenderReview is a renter's rating of a lender after an approved
// reservation, stored in the `lender_reviews` table.  One review per
// (renter, lender) pair.
type LenderReview struct {
	ID        uint64    // lender_reviews.id
	LenderID  uint64    // lender_reviews.lender_id
	RenterID  uint64    // lender_reviews.renter_id
	Rating    uint8     // lender_reviews.rating (1-5)
	Comment   *string   // lender_reviews.comment (nullable)
	CreatedAt time.Time // lender_reviews.created_at
}
