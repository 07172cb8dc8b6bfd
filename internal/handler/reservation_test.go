package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	"github.com/tigerstorage/storage-marketplace/internal/queue"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
)

type fakeLedger struct {
	submitID  uint64
	submitErr error
	decideErr error
	cancelErr error

	gotListingID uint64
	gotRequestID uint64
	gotDecision  ledger.Decision
	gotApproved  int64
	cancelled    bool
}

func (f *fakeLedger) SubmitRequest(_ context.Context, listingID, renterID uint64, requestedSpace int64) (uint64, error) {
	f.gotListingID = listingID
	return f.submitID, f.submitErr
}

func (f *fakeLedger) Decide(_ context.Context, requestID, ownerID uint64, decision ledger.Decision, approvedSpace int64) error {
	f.gotRequestID = requestID
	f.gotDecision = decision
	f.gotApproved = approvedSpace
	return f.decideErr
}

func (f *fakeLedger) CancelRequest(_ context.Context, requestID, renterID uint64) error {
	f.gotRequestID = requestID
	f.cancelled = true
	return f.cancelErr
}

type fakeReader struct {
	detail  *repository.RequestContext
	listErr error
}

func (f *fakeReader) ListByRenter(context.Context, uint64) ([]repository.RequestDetail, error) {
	return nil, nil
}
func (f *fakeReader) ListByListingForOwner(context.Context, uint64, uint64) ([]repository.RequestDetail, error) {
	return nil, f.listErr
}
func (f *fakeReader) GetRequestContext(context.Context, uint64) (*repository.RequestContext, error) {
	return f.detail, nil
}

func newContext(t *testing.T, method, target, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return m
}

func submitContext(t *testing.T, listingID, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := newContext(t, http.MethodPost, "/v1/listings/"+listingID+"/reserve", body, userID)
	c.SetParamNames("id")
	c.SetParamValues(listingID)
	return c, rec
}

func TestSubmitCreated(t *testing.T) {
	fl := &fakeLedger{submitID: 42}
	h := NewReservationHandler(fl, &fakeReader{}, nil)

	c, rec := submitContext(t, "7", `{"requested_amount":30}`, 5)
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if got := decodeBody(t, rec)["request_id"]; got != float64(42) {
		t.Errorf("request_id = %v, want 42", got)
	}
	if fl.gotListingID != 7 {
		t.Errorf("listing id = %d, want 7", fl.gotListingID)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"listing missing", ledger.ErrListingNotFound, http.StatusNotFound},
		{"duplicate pending", ledger.ErrDuplicatePending, http.StatusBadRequest},
		{"insufficient space", ledger.ErrInsufficientSpace, http.StatusBadRequest},
		{"non-positive amount", ledger.ErrInvalidRequestedSpace, http.StatusBadRequest},
		{"listing locked", ledger.ErrBusy, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewReservationHandler(&fakeLedger{submitErr: tc.err}, &fakeReader{}, nil)
			c, rec := submitContext(t, "7", `{"requested_amount":30}`, 5)
			if err := h.Submit(c); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestBusySetsRetryAfter(t *testing.T) {
	h := NewReservationHandler(&fakeLedger{submitErr: ledger.ErrBusy}, &fakeReader{}, nil)
	c, rec := submitContext(t, "7", `{"requested_amount":30}`, 5)
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestForListingErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"success", nil, http.StatusOK},
		{"not the owner", repository.ErrForbidden, http.StatusForbidden},
		{"listing missing", sql.ErrNoRows, http.StatusNotFound},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewReservationHandler(&fakeLedger{}, &fakeReader{listErr: tc.err}, nil)
			c, rec := newContext(t, http.MethodGet, "/v1/listings/7/reservation-requests", "", 3)
			c.SetParamNames("id")
			c.SetParamValues("7")
			if err := h.ForListing(c); err != nil {
				t.Fatalf("ForListing: %v", err)
			}
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func transitionContext(t *testing.T, requestID string, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := newContext(t, http.MethodPatch, "/v1/reservation-requests/"+requestID, body, userID)
	c.SetParamNames("id")
	c.SetParamValues(requestID)
	return c, rec
}

func TestTransitionDispatch(t *testing.T) {
	t.Run("approve full", func(t *testing.T) {
		fl := &fakeLedger{}
		h := NewReservationHandler(fl, &fakeReader{}, nil)
		c, rec := transitionContext(t, "9", `{"status":"approved_full"}`, 3)
		if err := h.Transition(c); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if fl.gotDecision != ledger.DecisionApproveFull || fl.gotRequestID != 9 {
			t.Errorf("decision = %q request = %d", fl.gotDecision, fl.gotRequestID)
		}
	})

	t.Run("approve partial carries amount", func(t *testing.T) {
		fl := &fakeLedger{}
		h := NewReservationHandler(fl, &fakeReader{}, nil)
		c, _ := transitionContext(t, "9", `{"status":"approved_partial","approved_amount":25}`, 3)
		if err := h.Transition(c); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if fl.gotDecision != ledger.DecisionApprovePartial || fl.gotApproved != 25 {
			t.Errorf("decision = %q approved = %d", fl.gotDecision, fl.gotApproved)
		}
	})

	t.Run("partial without amount rejected", func(t *testing.T) {
		h := NewReservationHandler(&fakeLedger{}, &fakeReader{}, nil)
		c, rec := transitionContext(t, "9", `{"status":"approved_partial"}`, 3)
		if err := h.Transition(c); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("cancel routes to renter path", func(t *testing.T) {
		fl := &fakeLedger{}
		h := NewReservationHandler(fl, &fakeReader{}, nil)
		c, _ := transitionContext(t, "9", `{"status":"cancelled_by_renter"}`, 3)
		if err := h.Transition(c); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if !fl.cancelled {
			t.Error("CancelRequest not called")
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		h := NewReservationHandler(&fakeLedger{}, &fakeReader{}, nil)
		c, rec := transitionContext(t, "9", `{"status":"maybe"}`, 3)
		if err := h.Transition(c); err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestTransitionErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"foreign listing", ledger.ErrNotAuthorized, http.StatusForbidden},
		{"already processed", ledger.ErrAlreadyProcessed, http.StatusBadRequest},
		{"unknown request", ledger.ErrRequestNotFound, http.StatusNotFound},
		{"invalid partial amount", ledger.ErrInvalidApprovedSpace, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewReservationHandler(&fakeLedger{decideErr: tc.err}, &fakeReader{}, nil)
			c, rec := transitionContext(t, "9", `{"status":"approved_full"}`, 3)
			if err := h.Transition(c); err != nil {
				t.Fatalf("Transition: %v", err)
			}
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	approved := int64(25)
	reader := &fakeReader{detail: &repository.RequestContext{
		ListingID:    7,
		ListingTitle: "Garage bay",
		OwnerID:      3,
	}}
	reader.detail.Request.ID = 9
	reader.detail.Request.RenterID = 5
	reader.detail.Request.RequestedSpace = 40
	reader.detail.Request.ApprovedSpace = &approved
	reader.detail.Request.Status = "approved_partial"

	var published *queue.ReservationDecidedEvent
	h := NewReservationHandler(&fakeLedger{}, reader,
		func(_ context.Context, ev queue.ReservationDecidedEvent) error {
			published = &ev
			return nil
		})
	c, _ := transitionContext(t, "9", `{"status":"approved_partial","approved_amount":25}`, 3)
	if err := h.Transition(c); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if published == nil {
		t.Fatal("no event published")
	}
	if published.RequestID != 9 || published.LenderID != 3 || published.Status != "approved_partial" {
		t.Errorf("unexpected event: %+v", published)
	}
	if published.ApprovedSpace == nil || *published.ApprovedSpace != 25 {
		t.Errorf("approved space = %v, want 25", published.ApprovedSpace)
	}
}
