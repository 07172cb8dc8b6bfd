package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// ListingRepo handles CRUD and browse queries over the listings table.
// Capacity mutations stay out of this repo: only the reservation ledger may
// touch remaining_space, with the single exception of the total-space
// reconciliation performed under lock in Update.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo binds a ListingRepo to a database handle.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

// ListingFilter narrows public browse results.  Zero values mean "no filter";
// IncludeUnavailable widens the result to full listings (withdrawn ones stay
// hidden).
type ListingFilter struct {
	MaxCostCents       uint32
	MinSpace           int64
	Location           string
	IncludeUnavailable bool
}

const listingColumns = `id, owner_id, title, description, location, latitude, longitude,
	cost_cents, total_space, remaining_space, start_date, end_date,
	image_url, is_available, withdrawn, created_at, updated_at`

// Create inserts a new listing with remaining_space equal to total_space and
// returns its ID.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO listings
			(owner_id, title, description, location, latitude, longitude,
			 cost_cents, total_space, remaining_space, start_date, end_date, image_url, is_available)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		l.OwnerID, l.Title, l.Description, l.Location, l.Latitude, l.Longitude,
		l.CostCents, l.TotalSpace, l.TotalSpace,
		l.StartDate.UTC().Format("2006-01-02"), l.EndDate.UTC().Format("2006-01-02"),
		l.ImageURL)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches one listing.  Returns sql.ErrNoRows when it does not exist.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	return scanListing(row)
}

// Browse returns the public catalog: available, non-withdrawn listings that
// pass the filter, newest first.
func (r *ListingRepo) Browse(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE withdrawn = 0`
	args := []any{}
	if !f.IncludeUnavailable {
		query += ` AND is_available = 1`
	}
	if f.MaxCostCents > 0 {
		query += ` AND cost_cents <= ?`
		args = append(args, f.MaxCostCents)
	}
	if f.MinSpace > 0 {
		query += ` AND remaining_space >= ?`
		args = append(args, f.MinSpace)
	}
	if f.Location != "" {
		query += ` AND location LIKE ?`
		args = append(args, "%"+f.Location+"%")
	}
	query += ` ORDER BY created_at DESC`
	return r.queryListings(ctx, query, args...)
}

// ListByOwner returns every listing a lender owns, withdrawn ones included.
func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Listing, error) {
	return r.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

// ListAll returns every listing in the system, for the admin console.
func (r *ListingRepo) ListAll(ctx context.Context) ([]model.Listing, error) {
	return r.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC`)
}

// ListingUpdate carries the editable fields of a listing.  Nil pointers leave
// the current value alone.
type ListingUpdate struct {
	Title       *string
	Description *string
	Location    *string
	Latitude    *float64
	Longitude   *float64
	CostCents   *uint32
	TotalSpace  *int64
	StartDate   *time.Time
	EndDate     *time.Time
	ImageURL    *string
}

// Update edits a listing owned by ownerID (admins pass isAdmin to bypass the
// owner check).  Changing total_space reconciles remaining_space against the
// already-committed amount: shrinking below what approvals have consumed is
// refused with ErrConflict, everything runs under a row lock so the ledger
// cannot race the recomputation.
// reconcileTotalSpace recomputes remaining_space for a total_space edit.
// Space already committed to approvals (total - remaining) is carried over
// untouched; the new total may not be cut below it, so committed plus the
// returned remaining always equals the new total.
func reconcileTotalSpace(total, remaining, newTotal int64) (int64, error) {
	consumed := total - remaining
	if newTotal < consumed {
		return 0, ErrConflict
	}
	return newTotal - consumed, nil
}

func (r *ListingRepo) Update(ctx context.Context, id, ownerID uint64, isAdmin bool, u ListingUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var owner uint64
	var total, remaining int64
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id, total_space, remaining_space FROM listings WHERE id = ? FOR UPDATE`, id).
		Scan(&owner, &total, &remaining)
	if err != nil {
		return err // sql.ErrNoRows for missing listings
	}
	if !isAdmin && owner != ownerID {
		return ErrForbidden
	}

	set := ""
	args := []any{}
	add := func(col string, v any) {
		if set != "" {
			set += ", "
		}
		set += col + " = ?"
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Location != nil {
		add("location", *u.Location)
	}
	if u.Latitude != nil {
		add("latitude", *u.Latitude)
	}
	if u.Longitude != nil {
		add("longitude", *u.Longitude)
	}
	if u.CostCents != nil {
		add("cost_cents", *u.CostCents)
	}
	if u.StartDate != nil {
		add("start_date", u.StartDate.UTC().Format("2006-01-02"))
	}
	if u.EndDate != nil {
		add("end_date", u.EndDate.UTC().Format("2006-01-02"))
	}
	if u.ImageURL != nil {
		add("image_url", *u.ImageURL)
	}
	if u.TotalSpace != nil {
		newRemaining, err := reconcileTotalSpace(total, remaining, *u.TotalSpace)
		if err != nil {
			return err
		}
		add("total_space", *u.TotalSpace)
		add("remaining_space", newRemaining)
		add("is_available", newRemaining > 0)
	}
	if set == "" {
		return nil
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, `UPDATE listings SET `+set+` WHERE id = ?`, args...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Withdraw pulls a listing off the market.  Rows are kept so existing
// reservation history stays intact; pending requests against it are left for
// the expiry sweep or explicit decisions.
func (r *ListingRepo) Withdraw(ctx context.Context, id, ownerID uint64, isAdmin bool) error {
	var owner uint64
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM listings WHERE id = ?`, id).Scan(&owner)
	if err != nil {
		return err
	}
	if !isAdmin && owner != ownerID {
		return ErrForbidden
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE listings SET withdrawn = 1, is_available = 0 WHERE id = ?`, id)
	return err
}

func (r *ListingRepo) queryListings(ctx context.Context, query string, args ...any) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	var desc, imageURL sql.NullString
	var lat, lng sql.NullFloat64
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &desc, &l.Location, &lat, &lng,
		&l.CostCents, &l.TotalSpace, &l.RemainingSpace, &l.StartDate, &l.EndDate,
		&imageURL, &l.IsAvailable, &l.Withdrawn, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		l.Description = &desc.String
	}
	if imageURL.Valid {
		l.ImageURL = &imageURL.String
	}
	if lat.Valid {
		l.Latitude = &lat.Float64
	}
	if lng.Valid {
		l.Longitude = &lng.Float64
	}
	return &l, nil
}
