package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	"github.com/tigerstorage/storage-marketplace/internal/model"
)

// ReservationStore is the SQL implementation of ledger.Store plus the read
// queries the reservation handlers need.  Ledger operations run inside a
// transaction that locks the listing row with SELECT ... FOR UPDATE, which
// serializes all capacity checks and mutations per listing; listings never
// contend with each other.  The bounded innodb_lock_wait_timeout set in the
// DSN turns an unobtainable lock into ledger.ErrBusy.
type ReservationStore struct {
	db *sql.DB
}

// NewReservationStore returns a ReservationStore bound to the given database.
func NewReservationStore(db *sql.DB) *ReservationStore { return &ReservationStore{db: db} }

// DB exposes the underlying handle for callers that manage their own
// transactions.
func (s *ReservationStore) DB() *sql.DB { return s.db }

// InListing opens a transaction, locks the listing row and runs fn.  fn's
// error rolls the whole transaction back, so a failure partway leaves both
// the request and the listing unchanged.
func (s *ReservationStore) InListing(ctx context.Context, listingID uint64, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the listing row for the duration of the transaction.
	var id uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM listings WHERE id = ? FOR UPDATE`, listingID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrListingNotFound
	}
	if err != nil {
		return translateLockErr(err)
	}

	if err := fn(&reservationTx{tx: tx, listingID: listingID}); err != nil {
		return translateLockErr(err)
	}
	if err := tx.Commit(); err != nil {
		return translateLockErr(err)
	}
	committed = true
	return nil
}

// ListingIDOfRequest resolves the listing a request belongs to so decision
// paths know which row to lock.
func (s *ReservationStore) ListingIDOfRequest(ctx context.Context, requestID uint64) (uint64, error) {
	var listingID uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT listing_id FROM reservation_requests WHERE id = ?`, requestID).Scan(&listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrRequestNotFound
	}
	if err != nil {
		return 0, err
	}
	return listingID, nil
}

// translateLockErr maps MySQL lock-wait timeouts (1205) and deadlocks (1213)
// to the retryable ledger.ErrBusy.  Everything else passes through.
func translateLockErr(err error) error {
	var my *mysql.MySQLError
	if errors.As(err, &my) && (my.Number == 1205 || my.Number == 1213) {
		return ledger.ErrBusy
	}
	return err
}

// reservationTx implements ledger.Tx scoped to one locked listing.
type reservationTx struct {
	tx        *sql.Tx
	listingID uint64
}

func (t *reservationTx) Listing(ctx context.Context) (*ledger.Listing, error) {
	var lst ledger.Listing
	var available, withdrawn bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, owner_id, total_space, remaining_space, is_available, withdrawn
		 FROM listings WHERE id = ?`, t.listingID).
		Scan(&lst.ID, &lst.OwnerID, &lst.TotalSpace, &lst.RemainingSpace, &available, &withdrawn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	lst.Available = available && !withdrawn
	return &lst, nil
}

func (t *reservationTx) PendingExists(ctx context.Context, renterID uint64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservation_requests
		 WHERE listing_id = ? AND renter_id = ? AND status = 'pending'`,
		t.listingID, renterID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *reservationTx) Request(ctx context.Context, requestID uint64) (*ledger.Request, error) {
	var req ledger.Request
	var approved sql.NullInt64
	var status string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, listing_id, renter_id, requested_space, approved_space, status, created_at, updated_at
		 FROM reservation_requests WHERE id = ? AND listing_id = ?`,
		requestID, t.listingID).
		Scan(&req.ID, &req.ListingID, &req.RenterID, &req.RequestedSpace, &approved, &status,
			&req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if approved.Valid {
		v := approved.Int64
		req.ApprovedSpace = &v
	}
	req.Status = ledger.Status(status)
	return &req, nil
}

func (t *reservationTx) InsertRequest(ctx context.Context, renterID uint64, requestedSpace int64) (uint64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservation_requests (listing_id, renter_id, requested_space, status)
		 VALUES (?, ?, ?, 'pending')`,
		t.listingID, renterID, requestedSpace)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (t *reservationTx) FinalizeRequest(ctx context.Context, requestID uint64, status ledger.Status, approvedSpace *int64) error {
	var approved sql.NullInt64
	if approvedSpace != nil {
		approved = sql.NullInt64{Int64: *approvedSpace, Valid: true}
	}
	// Guard on status='pending' so a terminal request can never be
	// finalized twice even if a caller bypassed the ledger's check.
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reservation_requests
		 SET status = ?, approved_space = ?, updated_at = NOW()
		 WHERE id = ? AND listing_id = ? AND status = 'pending'`,
		string(status), approved, requestID, t.listingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAlreadyProcessed
	}
	return nil
}

// takeSpaceStmt debits the listing and rederives availability.  MySQL applies
// SET assignments left to right using already-updated values, so the second
// assignment must read the bare column: it sees the decremented
// remaining_space, not the original.
const takeSpaceStmt = `UPDATE listings
	 SET remaining_space = remaining_space - ?,
	     is_available = (remaining_space > 0)
	 WHERE id = ? AND remaining_space >= ?`

func (t *reservationTx) TakeSpace(ctx context.Context, amount int64) error {
	res, err := t.tx.ExecContext(ctx, takeSpaceStmt,
		amount, t.listingID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInsufficientSpace
	}
	return nil
}

// RequestDetail is a reservation request joined with listing context for
// display to renters and lenders.
type RequestDetail struct {
	ID             uint64  `json:"id"`
	ListingID      uint64  `json:"listing_id"`
	ListingTitle   string  `json:"listing_title"`
	RenterID       uint64  `json:"renter_id"`
	RenterName     string  `json:"renter_name"`
	RequestedSpace int64   `json:"requested_amount"`
	ApprovedSpace  *int64  `json:"approved_amount,omitempty"`
	Status         string  `json:"status"`
	EndDate        string  `json:"end_date"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

const requestDetailQuery = `
	SELECT r.id, r.listing_id, l.title, r.renter_id, u.display_name,
	       r.requested_space, r.approved_space, r.status,
	       l.end_date, r.created_at, r.updated_at
	FROM reservation_requests r
	JOIN listings l ON l.id = r.listing_id
	JOIN users u ON u.id = r.renter_id`

// ListByRenter returns all of a renter's requests, newest first.
func (s *ReservationStore) ListByRenter(ctx context.Context, renterID uint64) ([]RequestDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		requestDetailQuery+` WHERE r.renter_id = ? ORDER BY r.created_at DESC`, renterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestDetails(rows)
}

// ListByListingForOwner returns all requests against a listing after
// verifying that ownerID owns it.  Returns sql.ErrNoRows when the listing
// does not exist and ErrForbidden when it belongs to someone else.
func (s *ReservationStore) ListByListingForOwner(ctx context.Context, listingID, ownerID uint64) ([]RequestDetail, error) {
	var actualOwner uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM listings WHERE id = ?`, listingID).Scan(&actualOwner)
	if err != nil {
		return nil, err
	}
	if actualOwner != ownerID {
		return nil, ErrForbidden
	}
	rows, err := s.db.QueryContext(ctx,
		requestDetailQuery+` WHERE r.listing_id = ? ORDER BY r.created_at DESC`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestDetails(rows)
}

func scanRequestDetails(rows *sql.Rows) ([]RequestDetail, error) {
	out := make([]RequestDetail, 0)
	for rows.Next() {
		var d RequestDetail
		var approved sql.NullInt64
		var endDate, createdAt, updatedAt time.Time
		if err := rows.Scan(&d.ID, &d.ListingID, &d.ListingTitle, &d.RenterID, &d.RenterName,
			&d.RequestedSpace, &approved, &d.Status, &endDate, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if approved.Valid {
			v := approved.Int64
			d.ApprovedSpace = &v
		}
		d.EndDate = endDate.UTC().Format("2006-01-02")
		d.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		d.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpiredPendingIDs returns the IDs of pending requests whose listing's end
// date has passed, for the background expiry sweep.
func (s *ReservationStore) ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id
		 FROM reservation_requests r
		 JOIN listings l ON l.id = r.listing_id
		 WHERE r.status = 'pending' AND l.end_date < ?
		 LIMIT ?`, now.UTC().Format("2006-01-02"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasApprovedWithLender reports whether the renter has at least one approved
// request on any of the lender's listings.  Used to gate review submission.
func (s *ReservationStore) HasApprovedWithLender(ctx context.Context, renterID, lenderID uint64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM reservation_requests r
		 JOIN listings l ON l.id = r.listing_id
		 WHERE r.renter_id = ? AND l.owner_id = ?
		   AND r.status IN ('approved_full','approved_partial')`,
		renterID, lenderID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RequestContext bundles the fields needed to build a decided event without
// another round trip per field.
type RequestContext struct {
	Request      model.ReservationRequest
	ListingID    uint64
	ListingTitle string
	OwnerID      uint64
}

// GetRequestContext loads a request together with its listing's owner.
func (s *ReservationStore) GetRequestContext(ctx context.Context, requestID uint64) (*RequestContext, error) {
	var rc RequestContext
	var approved sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.listing_id, r.renter_id, r.requested_space, r.approved_space, r.status,
		        r.created_at, r.updated_at, l.title, l.owner_id
		 FROM reservation_requests r
		 JOIN listings l ON l.id = r.listing_id
		 WHERE r.id = ?`, requestID).
		Scan(&rc.Request.ID, &rc.Request.ListingID, &rc.Request.RenterID,
			&rc.Request.RequestedSpace, &approved, &rc.Request.Status,
			&rc.Request.CreatedAt, &rc.Request.UpdatedAt, &rc.ListingTitle, &rc.OwnerID)
	if err != nil {
		return nil, err
	}
	if approved.Valid {
		v := approved.Int64
		rc.Request.ApprovedSpace = &v
	}
	rc.ListingID = rc.Request.ListingID
	return &rc, nil
}
