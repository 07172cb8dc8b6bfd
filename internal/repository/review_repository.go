package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// ReviewRepo stores renter ratings of lenders.  Eligibility (an approved
// reservation between the pair) is checked by the handler through
// ReservationStore.HasApprovedWithLender before Create is called.
type ReviewRepo struct {
	db *sql.DB
}

// NewReviewRepo binds a ReviewRepo to a database handle.
func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Create inserts a review.  A second review for the same lender by the same
// renter hits the unique key and maps to ErrConflict.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.LenderReview) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO lender_reviews (lender_id, renter_id, rating, comment) VALUES (?, ?, ?, ?)`,
		rv.LenderID, rv.RenterID, rv.Rating, rv.Comment)
	if err != nil {
		var my *mysql.MySQLError
		if errors.As(err, &my) {
			switch my.Number {
			case 1062:
				return 0, ErrConflict
			case 1452:
				return 0, sql.ErrNoRows
			}
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ReviewEntry is a review joined with the reviewer's display name.
type ReviewEntry struct {
	ID         uint64  `json:"id"`
	RenterID   uint64  `json:"renter_id"`
	RenterName string  `json:"renter_name"`
	Rating     uint8   `json:"rating"`
	Comment    *string `json:"comment,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// ListForLender returns a lender's reviews, newest first, with the average
// rating across all of them (0 when there are none).
func (r *ReviewRepo) ListForLender(ctx context.Context, lenderID uint64) ([]ReviewEntry, float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT v.id, v.renter_id, u.display_name, v.rating, v.comment, v.created_at
		 FROM lender_reviews v
		 JOIN users u ON u.id = v.renter_id
		 WHERE v.lender_id = ?
		 ORDER BY v.created_at DESC`, lenderID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]ReviewEntry, 0)
	var sum int
	for rows.Next() {
		var e ReviewEntry
		var comment sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.RenterID, &e.RenterName, &e.Rating, &comment, &createdAt); err != nil {
			return nil, 0, err
		}
		if comment.Valid {
			e.Comment = &comment.String
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		sum += int(e.Rating)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	avg := 0.0
	if len(out) > 0 {
		avg = float64(sum) / float64(len(out))
	}
	return out, avg, nil
}
