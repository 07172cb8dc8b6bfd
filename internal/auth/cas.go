// Package auth implements ticket validation against a campus CAS server.
// The server is queried over its JSON validate endpoint; a successful
// response yields the authenticated netid, which the caller exchanges for a
// marketplace account and JWT pair.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTicketInvalid is returned when CAS refuses the ticket.
var ErrTicketInvalid = errors.New("cas: ticket validation failed")

// CASClient validates service tickets against one CAS server.
type CASClient struct {
	baseURL string
	client  *http.Client
}

// NewCASClient builds a client for the CAS server at baseURL, e.g.
// "https://fed.example.edu/cas".  A trailing slash is tolerated.
func NewCASClient(baseURL string) *CASClient {
	return &CASClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// serviceResponse mirrors the JSON body of the CAS p3/serviceValidate
// endpoint.  Only the fields we read are declared.
type serviceResponse struct {
	ServiceResponse struct {
		AuthenticationSuccess *struct {
			User string `json:"user"`
		} `json:"authenticationSuccess"`
		AuthenticationFailure *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"authenticationFailure"`
	} `json:"serviceResponse"`
}

// Validate checks a service ticket and returns the netid it authenticates,
// lowercased.  The service URL must match the one the ticket was issued for,
// with the ticket parameter stripped.
func (c *CASClient) Validate(ctx context.Context, ticket, serviceURL string) (string, error) {
	q := url.Values{}
	q.Set("ticket", ticket)
	q.Set("service", StripTicket(serviceURL))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/p3/serviceValidate?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cas: validate request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cas: validate returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	var sr serviceResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("cas: decode response: %w", err)
	}
	if sr.ServiceResponse.AuthenticationFailure != nil {
		return "", fmt.Errorf("%w: %s", ErrTicketInvalid,
			sr.ServiceResponse.AuthenticationFailure.Code)
	}
	success := sr.ServiceResponse.AuthenticationSuccess
	if success == nil || success.User == "" {
		return "", ErrTicketInvalid
	}
	return strings.ToLower(success.User), nil
}

// LoginURL builds the CAS login redirect for a service URL.
func (c *CASClient) LoginURL(serviceURL string) string {
	return c.baseURL + "/login?service=" + url.QueryEscape(StripTicket(serviceURL))
}

// StripTicket removes the ticket parameter from a service URL so the URL
// presented during validation matches the one the ticket was issued for.
func StripTicket(serviceURL string) string {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return serviceURL
	}
	q := u.Query()
	if _, ok := q["ticket"]; !ok {
		return serviceURL
	}
	q.Del("ticket")
	u.RawQuery = q.Encode()
	return u.String()
}
