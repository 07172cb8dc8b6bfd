package worker

import (
	"context"
	"testing"
	"time"

	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	"github.com/tigerstorage/storage-marketplace/internal/queue"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

type stubSource struct {
	ids      []uint64
	contexts map[uint64]*repository.RequestContext
}

func (s *stubSource) ExpiredPendingIDs(context.Context, time.Time, int) ([]uint64, error) {
	return s.ids, nil
}

func (s *stubSource) GetRequestContext(_ context.Context, id uint64) (*repository.RequestContext, error) {
	if rc, ok := s.contexts[id]; ok {
		return rc, nil
	}
	rc := &repository.RequestContext{ListingID: 1, OwnerID: 2}
	rc.Request.ID = id
	rc.Request.Status = string(ledger.StatusExpired)
	return rc, nil
}

type stubExpirer struct {
	errs    map[uint64]error
	expired []uint64
}

func (s *stubExpirer) ExpireRequest(_ context.Context, id uint64) error {
	if err := s.errs[id]; err != nil {
		return err
	}
	s.expired = append(s.expired, id)
	return nil
}

func TestSweepOnceExpiresOverdueRequests(t *testing.T) {
	exp := &stubExpirer{}
	s := NewExpirySweeper(&stubSource{ids: []uint64{1, 2, 3}}, exp, nil, time.Minute)

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 3 || len(exp.expired) != 3 {
		t.Errorf("expired %d requests, want 3", n)
	}
}

func TestSweepOnceSkipsDecidedAndBusy(t *testing.T) {
	exp := &stubExpirer{errs: map[uint64]error{
		2: ledger.ErrAlreadyProcessed,
		3: ledger.ErrBusy,
	}}
	s := NewExpirySweeper(&stubSource{ids: []uint64{1, 2, 3, 4}}, exp, nil, time.Minute)

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("expired = %d, want 2", n)
	}
	if len(exp.expired) != 2 || exp.expired[0] != 1 || exp.expired[1] != 4 {
		t.Errorf("expired ids = %v, want [1 4]", exp.expired)
	}
}

func TestSweepOncePublishesExpiredEvents(t *testing.T) {
	exp := &stubExpirer{errs: map[uint64]error{2: ledger.ErrAlreadyProcessed}}
	var events []queue.ReservationDecidedEvent
	s := NewExpirySweeper(&stubSource{ids: []uint64{1, 2, 3}}, exp,
		func(_ context.Context, ev queue.ReservationDecidedEvent) error {
			events = append(events, ev)
			return nil
		}, time.Minute)

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("expired = %d, want 2", n)
	}
	// One event per committed expiry, none for the already-decided request.
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].RequestID != 1 || events[1].RequestID != 3 {
		t.Errorf("event request ids = [%d %d], want [1 3]", events[0].RequestID, events[1].RequestID)
	}
	for _, ev := range events {
		if ev.Status != string(ledger.StatusExpired) {
			t.Errorf("event status = %q, want expired", ev.Status)
		}
	}
}
