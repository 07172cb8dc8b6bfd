package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// InterestRepo tracks which renters bookmarked which listings.  One row per
// (listing, renter) pair, enforced by a unique key.
type InterestRepo struct {
	db *sql.DB
}

// NewInterestRepo binds an InterestRepo to a database handle.
func NewInterestRepo(db *sql.DB) *InterestRepo { return &InterestRepo{db: db} }

// Add registers interest.  Re-adding an existing bookmark is a no-op.
func (r *InterestRepo) Add(ctx context.Context, listingID, renterID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listing_interests (listing_id, renter_id) VALUES (?, ?)`,
		listingID, renterID)
	if err != nil {
		var my *mysql.MySQLError
		if errors.As(err, &my) {
			switch my.Number {
			case 1062: // already bookmarked
				return nil
			case 1452: // no such listing
				return sql.ErrNoRows
			}
		}
		return err
	}
	return nil
}

// Remove drops a bookmark; removing one that does not exist is a no-op.
func (r *InterestRepo) Remove(ctx context.Context, listingID, renterID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM listing_interests WHERE listing_id = ? AND renter_id = ?`,
		listingID, renterID)
	return err
}

// ListByRenter returns the listings a renter has bookmarked, newest bookmark
// first.
func (r *InterestRepo) ListByRenter(ctx context.Context, renterID uint64) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.owner_id, l.title, l.description, l.location, l.latitude, l.longitude,
		        l.cost_cents, l.total_space, l.remaining_space, l.start_date, l.end_date,
		        l.image_url, l.is_available, l.withdrawn, l.created_at, l.updated_at
		 FROM listing_interests i
		 JOIN listings l ON l.id = i.listing_id
		 WHERE i.renter_id = ?
		 ORDER BY i.created_at DESC`, renterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// InterestedRenter is one renter who bookmarked a listing, shown to the
// lender as a demand signal.
type InterestedRenter struct {
	RenterID    uint64 `json:"renter_id"`
	DisplayName string `json:"display_name"`
	Since       string `json:"since"`
}

// RentersForListing returns the renters who bookmarked a listing, oldest
// bookmark first.
func (r *InterestRepo) RentersForListing(ctx context.Context, listingID uint64) ([]InterestedRenter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.renter_id, u.display_name, i.created_at
		 FROM listing_interests i
		 JOIN users u ON u.id = i.renter_id
		 WHERE i.listing_id = ?
		 ORDER BY i.created_at`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]InterestedRenter, 0)
	for rows.Next() {
		var ir InterestedRenter
		var since time.Time
		if err := rows.Scan(&ir.RenterID, &ir.DisplayName, &since); err != nil {
			return nil, err
		}
		ir.Since = since.UTC().Format(time.RFC3339)
		out = append(out, ir)
	}
	return out, rows.Err()
}
