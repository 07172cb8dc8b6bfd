// Package worker hosts background loops that run alongside the HTTP server.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	"github.com/tigerstorage/storage-marketplace/internal/queue"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

// expiredSource yields pending requests whose listing end date has passed,
// and resolves the listing context of a request for event payloads.
type expiredSource interface {
	ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	GetRequestContext(ctx context.Context, requestID uint64) (*repository.RequestContext, error)
}

// expirer applies the expiry transition to one request.
type expirer interface {
	ExpireRequest(ctx context.Context, requestID uint64) error
}

// ExpirySweeper periodically expires pending reservation requests on
// listings whose offer window has closed.  Each request goes through the
// ledger's normal transition discipline, so a request decided between the
// scan and the sweep is simply skipped.  Committed expirations emit the same
// decided event as lender decisions.
type ExpirySweeper struct {
	Source   expiredSource
	Ledger   expirer
	Publish  func(ctx context.Context, ev queue.ReservationDecidedEvent) error // nil disables events
	Interval time.Duration
	Batch    int
}

// NewExpirySweeper builds a sweeper over the given source and ledger.
func NewExpirySweeper(src expiredSource, l expirer,
	publish func(ctx context.Context, ev queue.ReservationDecidedEvent) error,
	interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{Source: src, Ledger: l, Publish: publish, Interval: interval, Batch: 500}
}

// Run blocks, sweeping once per interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Printf("expiry-sweep: %v", err)
			} else if n > 0 {
				log.Printf("expiry-sweep: expired %d requests", n)
			}
		}
	}
}

// SweepOnce expires one batch of overdue pending requests and returns how
// many transitions it applied.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.Source.ExpiredPendingIDs(ctx, time.Now().UTC(), s.Batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		err := s.Ledger.ExpireRequest(ctx, id)
		switch {
		case err == nil:
			expired++
			s.publishExpired(ctx, id)
		case errors.Is(err, ledger.ErrAlreadyProcessed),
			errors.Is(err, ledger.ErrRequestNotFound):
			// Decided or removed since the scan; nothing to do.
		case errors.Is(err, ledger.ErrBusy):
			// Listing under contention; the next sweep retries.
		default:
			log.Printf("expiry-sweep: request %d: %v", id, err)
		}
	}
	return expired, nil
}

// publishExpired emits a reservation.decided event for a request the sweep
// just expired.  Failures are logged and swallowed: the transition already
// committed.
func (s *ExpirySweeper) publishExpired(ctx context.Context, requestID uint64) {
	if s.Publish == nil {
		return
	}
	rc, err := s.Source.GetRequestContext(ctx, requestID)
	if err != nil {
		log.Printf("expiry-sweep: request %d context: %v", requestID, err)
		return
	}
	err = s.Publish(ctx, queue.ReservationDecidedEvent{
		RequestID:      rc.Request.ID,
		ListingID:      rc.ListingID,
		ListingTitle:   rc.ListingTitle,
		RenterID:       rc.Request.RenterID,
		LenderID:       rc.OwnerID,
		RequestedSpace: rc.Request.RequestedSpace,
		ApprovedSpace:  rc.Request.ApprovedSpace,
		Status:         rc.Request.Status,
		DecidedAt:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("expiry-sweep: request %d publish: %v", requestID, err)
	}
}
