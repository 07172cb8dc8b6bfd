package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory Store with real per-listing mutexes, so the
// concurrency tests exercise the same serialization discipline the SQL store
// provides with row locks.
type fakeStore struct {
	mu       sync.Mutex
	locks    map[uint64]*sync.Mutex
	listings map[uint64]*Listing
	requests map[uint64]*Request
	nextID   uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locks:    make(map[uint64]*sync.Mutex),
		listings: make(map[uint64]*Listing),
		requests: make(map[uint64]*Request),
		nextID:   1,
	}
}

func (s *fakeStore) addListing(ownerID uint64, total int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listings[id] = &Listing{ID: id, OwnerID: ownerID, TotalSpace: total, RemainingSpace: total, Available: true}
	s.locks[id] = &sync.Mutex{}
	return id
}

func (s *fakeStore) InListing(ctx context.Context, listingID uint64, fn func(tx Tx) error) error {
	s.mu.Lock()
	lock, ok := s.locks[listingID]
	s.mu.Unlock()
	if !ok {
		return ErrListingNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	// Run fn against copies; mutations are applied only when fn succeeds,
	// mimicking transactional commit/rollback.
	tx := &fakeTx{store: s, listingID: listingID, staged: make(map[uint64]Request)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *fakeStore) ListingIDOfRequest(ctx context.Context, requestID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return 0, ErrRequestNotFound
	}
	return req.ListingID, nil
}

type fakeTx struct {
	store     *fakeStore
	listingID uint64
	staged    map[uint64]Request
	remaining *int64 // staged remaining space, nil if untouched
}

func (t *fakeTx) snapshotListing() *Listing {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *t.store.listings[t.listingID]
	return &cp
}

func (t *fakeTx) Listing(ctx context.Context) (*Listing, error) {
	lst := t.snapshotListing()
	if t.remaining != nil {
		lst.RemainingSpace = *t.remaining
		lst.Available = *t.remaining > 0
	}
	return lst, nil
}

func (t *fakeTx) PendingExists(ctx context.Context, renterID uint64) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, r := range t.store.requests {
		if r.ListingID == t.listingID && r.RenterID == renterID && r.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) Request(ctx context.Context, requestID uint64) (*Request, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.requests[requestID]
	if !ok || r.ListingID != t.listingID {
		return nil, ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *fakeTx) InsertRequest(ctx context.Context, renterID uint64, requestedSpace int64) (uint64, error) {
	t.store.mu.Lock()
	id := t.store.nextID
	t.store.nextID++
	t.store.mu.Unlock()
	now := time.Now().UTC()
	t.staged[id] = Request{
		ID: id, ListingID: t.listingID, RenterID: renterID,
		RequestedSpace: requestedSpace, Status: StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	return id, nil
}

func (t *fakeTx) FinalizeRequest(ctx context.Context, requestID uint64, status Status, approvedSpace *int64) error {
	req, err := t.Request(ctx, requestID)
	if err != nil {
		return err
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	if approvedSpace != nil {
		v := *approvedSpace
		req.ApprovedSpace = &v
	}
	t.staged[requestID] = *req
	return nil
}

func (t *fakeTx) TakeSpace(ctx context.Context, amount int64) error {
	lst, _ := t.Listing(ctx)
	if amount > lst.RemainingSpace {
		return ErrInsufficientSpace
	}
	rem := lst.RemainingSpace - amount
	t.remaining = &rem
	return nil
}

func (t *fakeTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, r := range t.staged {
		cp := r
		t.store.requests[id] = &cp
	}
	if t.remaining != nil {
		lst := t.store.listings[t.listingID]
		lst.RemainingSpace = *t.remaining
		lst.Available = *t.remaining > 0
	}
}

// conserved checks the capacity-conservation invariant for a listing.
func conserved(s *fakeStore, listingID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lst := s.listings[listingID]
	var approved int64
	for _, r := range s.requests {
		if r.ListingID != listingID || r.ApprovedSpace == nil {
			continue
		}
		if r.Status == StatusApprovedFull || r.Status == StatusApprovedPartial {
			approved += *r.ApprovedSpace
		}
	}
	return lst.RemainingSpace+approved == lst.TotalSpace
}

func TestSubmitRequestValidation(t *testing.T) {
	store := newFakeStore()
	owner := uint64(1)
	listingID := store.addListing(owner, 100)
	l := New(store)
	ctx := context.Background()

	if _, err := l.SubmitRequest(ctx, listingID, 2, 0); !errors.Is(err, ErrInvalidRequestedSpace) {
		t.Fatalf("zero amount: expected ErrInvalidRequestedSpace, got %v", err)
	}
	if _, err := l.SubmitRequest(ctx, listingID, 2, -5); !errors.Is(err, ErrInvalidRequestedSpace) {
		t.Fatalf("negative amount: expected ErrInvalidRequestedSpace, got %v", err)
	}
	if _, err := l.SubmitRequest(ctx, 9999, 2, 10); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("missing listing: expected ErrListingNotFound, got %v", err)
	}
	if _, err := l.SubmitRequest(ctx, listingID, 2, 101); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("oversized ask: expected ErrInsufficientSpace, got %v", err)
	}
}

// TestFullScenario walks the end-to-end scenario: competing renters,
// duplicate pending, full and partial approvals, exhaustion.
func TestFullScenario(t *testing.T) {
	store := newFakeStore()
	owner := uint64(1)
	renterA, renterB, renterC, renterD := uint64(2), uint64(3), uint64(4), uint64(5)
	listingID := store.addListing(owner, 100)
	l := New(store)
	ctx := context.Background()

	req1, err := l.SubmitRequest(ctx, listingID, renterA, 60)
	if err != nil {
		t.Fatalf("submit 60: %v", err)
	}

	if _, err := l.SubmitRequest(ctx, listingID, renterA, 10); !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("second pending from same renter: expected ErrDuplicatePending, got %v", err)
	}

	if err := l.Decide(ctx, req1, owner, DecisionApproveFull, 0); err != nil {
		t.Fatalf("approve full: %v", err)
	}
	if lst := remaining(store, listingID); lst != 40 {
		t.Fatalf("remaining after full approval = %d, want 40", lst)
	}

	if _, err := l.SubmitRequest(ctx, listingID, renterB, 50); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("50 into 40: expected ErrInsufficientSpace, got %v", err)
	}
	req2, err := l.SubmitRequest(ctx, listingID, renterB, 40)
	if err != nil {
		t.Fatalf("submit 40: %v", err)
	}

	if err := l.Decide(ctx, req2, owner, DecisionApprovePartial, 25); err != nil {
		t.Fatalf("approve partial 25: %v", err)
	}
	if lst := remaining(store, listingID); lst != 15 {
		t.Fatalf("remaining after partial = %d, want 15", lst)
	}
	if !available(store, listingID) {
		t.Fatal("listing should still be available at remaining=15")
	}

	req3, err := l.SubmitRequest(ctx, listingID, renterC, 15)
	if err != nil {
		t.Fatalf("submit 15: %v", err)
	}
	if err := l.Decide(ctx, req3, owner, DecisionApproveFull, 0); err != nil {
		t.Fatalf("approve final 15: %v", err)
	}
	if lst := remaining(store, listingID); lst != 0 {
		t.Fatalf("remaining after exhaustion = %d, want 0", lst)
	}
	if available(store, listingID) {
		t.Fatal("listing should be unavailable at remaining=0")
	}

	if _, err := l.SubmitRequest(ctx, listingID, renterD, 1); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("1 into 0: expected ErrInsufficientSpace, got %v", err)
	}

	if !conserved(store, listingID) {
		t.Fatal("capacity conservation violated")
	}
}

func TestCancelPendingRequest(t *testing.T) {
	store := newFakeStore()
	owner, renter, stranger := uint64(1), uint64(2), uint64(3)
	listingID := store.addListing(owner, 50)
	l := New(store)
	ctx := context.Background()

	reqID, err := l.SubmitRequest(ctx, listingID, renter, 20)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := l.CancelRequest(ctx, reqID, stranger); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("cancel by stranger: expected ErrNotAuthorized, got %v", err)
	}
	if err := l.CancelRequest(ctx, reqID, renter); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st := status(store, reqID); st != StatusCancelledByRenter {
		t.Fatalf("status = %s, want %s", st, StatusCancelledByRenter)
	}
	if rem := remaining(store, listingID); rem != 50 {
		t.Fatalf("remaining after cancel = %d, want 50 (no capacity held while pending)", rem)
	}
	if err := l.CancelRequest(ctx, reqID, renter); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("second cancel: expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	store := newFakeStore()
	owner, renter := uint64(1), uint64(2)
	listingID := store.addListing(owner, 50)
	l := New(store)
	ctx := context.Background()

	reqID, _ := l.SubmitRequest(ctx, listingID, renter, 10)
	if err := l.Decide(ctx, reqID, owner, DecisionReject, 0); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Idempotent rejection: a second reject fails and changes nothing.
	if err := l.Decide(ctx, reqID, owner, DecisionReject, 0); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("second reject: expected ErrAlreadyProcessed, got %v", err)
	}
	for _, d := range []Decision{DecisionApproveFull, DecisionApprovePartial, DecisionExpire} {
		if err := l.Decide(ctx, reqID, owner, d, 5); !errors.Is(err, ErrAlreadyProcessed) {
			t.Fatalf("%s after reject: expected ErrAlreadyProcessed, got %v", d, err)
		}
	}
	if st := status(store, reqID); st != StatusRejected {
		t.Fatalf("status mutated to %s after repeated decisions", st)
	}
	if rem := remaining(store, listingID); rem != 50 {
		t.Fatalf("remaining changed to %d by rejected request", rem)
	}
}

func TestDecideAuthorization(t *testing.T) {
	store := newFakeStore()
	owner, renter, stranger := uint64(1), uint64(2), uint64(3)
	listingID := store.addListing(owner, 50)
	l := New(store)
	ctx := context.Background()

	reqID, _ := l.SubmitRequest(ctx, listingID, renter, 10)
	if err := l.Decide(ctx, reqID, stranger, DecisionApproveFull, 0); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("decision by non-owner: expected ErrNotAuthorized, got %v", err)
	}
	if err := l.Decide(ctx, 9999, owner, DecisionApproveFull, 0); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("unknown request: expected ErrRequestNotFound, got %v", err)
	}
}

func TestPartialApprovalBounds(t *testing.T) {
	store := newFakeStore()
	owner, renter := uint64(1), uint64(2)
	listingID := store.addListing(owner, 30)
	l := New(store)
	ctx := context.Background()

	reqID, _ := l.SubmitRequest(ctx, listingID, renter, 30)
	if err := l.Decide(ctx, reqID, owner, DecisionApprovePartial, 0); !errors.Is(err, ErrInvalidApprovedSpace) {
		t.Fatalf("partial 0: expected ErrInvalidApprovedSpace, got %v", err)
	}
	if err := l.Decide(ctx, reqID, owner, DecisionApprovePartial, 31); !errors.Is(err, ErrInvalidApprovedSpace) {
		t.Fatalf("partial above remaining: expected ErrInvalidApprovedSpace, got %v", err)
	}
	if err := l.Decide(ctx, reqID, owner, DecisionApprovePartial, 30); err != nil {
		t.Fatalf("partial at bound: %v", err)
	}
	if !conserved(store, listingID) {
		t.Fatal("capacity conservation violated")
	}
}

func TestExpireRequest(t *testing.T) {
	store := newFakeStore()
	owner, renter := uint64(1), uint64(2)
	listingID := store.addListing(owner, 20)
	l := New(store)
	ctx := context.Background()

	reqID, _ := l.SubmitRequest(ctx, listingID, renter, 10)
	if err := l.ExpireRequest(ctx, reqID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if st := status(store, reqID); st != StatusExpired {
		t.Fatalf("status = %s, want %s", st, StatusExpired)
	}
	if err := l.ExpireRequest(ctx, reqID); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("re-expire: expected ErrAlreadyProcessed, got %v", err)
	}
	if rem := remaining(store, listingID); rem != 20 {
		t.Fatalf("remaining changed to %d by expiry", rem)
	}
}

// TestConcurrentApprovalsNoOvercommit races two full approvals that each fit
// individually but not jointly.  Exactly one must succeed.
func TestConcurrentApprovalsNoOvercommit(t *testing.T) {
	store := newFakeStore()
	owner := uint64(1)
	listingID := store.addListing(owner, 100)
	l := New(store)
	ctx := context.Background()

	req1, err := l.SubmitRequest(ctx, listingID, 2, 60)
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	req2, err := l.SubmitRequest(ctx, listingID, 3, 60)
	if err != nil {
		t.Fatalf("submit 2: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []uint64{req1, req2} {
		wg.Add(1)
		go func(requestID uint64) {
			defer wg.Done()
			errs <- l.Decide(ctx, requestID, owner, DecisionApproveFull, 0)
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientSpace):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("got %d successes and %d capacity failures, want exactly 1 and 1", ok, insufficient)
	}
	if rem := remaining(store, listingID); rem != 40 {
		t.Fatalf("remaining = %d, want 40", rem)
	}
	if !conserved(store, listingID) {
		t.Fatal("capacity conservation violated under concurrency")
	}
}

func remaining(s *fakeStore, listingID uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings[listingID].RemainingSpace
}

func available(s *fakeStore, listingID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings[listingID].Available
}

func status(s *fakeStore, requestID uint64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[requestID].Status
}
