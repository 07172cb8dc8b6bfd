package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateSuccessLowercasesNetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p3/serviceValidate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ticket"); got != "ST-123" {
			t.Errorf("ticket = %q, want ST-123", got)
		}
		if got := r.URL.Query().Get("service"); got != "https://app.example.com/auth/cas" {
			t.Errorf("service = %q, ticket not stripped", got)
		}
		w.Write([]byte(`{"serviceResponse":{"authenticationSuccess":{"user":"AB1234"}}}`))
	}))
	defer srv.Close()

	c := NewCASClient(srv.URL)
	netid, err := c.Validate(context.Background(), "ST-123",
		"https://app.example.com/auth/cas?ticket=ST-123")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if netid != "ab1234" {
		t.Errorf("netid = %q, want ab1234", netid)
	}
}

func TestValidateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serviceResponse":{"authenticationFailure":{"code":"INVALID_TICKET","description":"Ticket ST-999 not recognized"}}}`))
	}))
	defer srv.Close()

	c := NewCASClient(srv.URL)
	_, err := c.Validate(context.Background(), "ST-999", "https://app.example.com/auth/cas")
	if !errors.Is(err, ErrTicketInvalid) {
		t.Fatalf("err = %v, want ErrTicketInvalid", err)
	}
}

func TestValidateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"serviceResponse":{}}`))
	}))
	defer srv.Close()

	c := NewCASClient(srv.URL)
	_, err := c.Validate(context.Background(), "ST-1", "https://app.example.com/auth/cas")
	if !errors.Is(err, ErrTicketInvalid) {
		t.Fatalf("err = %v, want ErrTicketInvalid", err)
	}
}

func TestStripTicket(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://app.example.com/auth/cas?ticket=ST-1", "https://app.example.com/auth/cas"},
		{"https://app.example.com/auth/cas?next=%2Fmap&ticket=ST-1", "https://app.example.com/auth/cas?next=%2Fmap"},
		{"https://app.example.com/auth/cas", "https://app.example.com/auth/cas"},
	}
	for _, tc := range cases {
		if got := StripTicket(tc.in); got != tc.want {
			t.Errorf("StripTicket(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
