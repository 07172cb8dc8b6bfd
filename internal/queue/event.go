// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains them.
package queue

// ReservationDecidedEvent is published whenever a reservation request leaves
// the pending state.  It carries enough context for downstream consumers to
// log or notify without querying the primary database.
type ReservationDecidedEvent struct {
	RequestID      uint64 `json:"request_id"`
	ListingID      uint64 `json:"listing_id"`
	ListingTitle   string `json:"listing_title"`
	RenterID       uint64 `json:"renter_id"`
	LenderID       uint64 `json:"lender_id"`
	RequestedSpace int64  `json:"requested_space"`
	ApprovedSpace  *int64 `json:"approved_space,omitempty"`
	Status         string `json:"status"`
	DecidedAt      string `json:"decided_at"`
}
