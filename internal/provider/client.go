package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/suspectuso/ada-tracker/internal/httpapi"
)

// Client is an HTTP client for the wallet-data provider
type Client struct {
	api *httpapi.Client
}

// NewClient creates a new provider client
func NewClient(baseURL, apiKey string) *Client {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	return &Client{
		api: httpapi.New(baseURL, header, 100*time.Millisecond),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	err := c.api.Do(ctx, method, path, query, body, out)
	var se *httpapi.StatusError
	if errors.As(err, &se) {
		return decodeError(se.StatusCode, se.Body)
	}
	return err
}

// GetWallet returns balance and assets for an address
func (c *Client) GetWallet(ctx context.Context, address string) (*WalletResponse, error) {
	var w WalletResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/wallet/"+url.PathEscape(address), nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// InitiatePayment asks for a one-time payment address and amount
func (c *Client) InitiatePayment(ctx context.Context) (*PaymentRequest, error) {
	var p PaymentRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/initiate-payment", nil, struct{}{}, &p); err != nil {
		return nil, err
	}
	if p.PaymentID == "" {
		return nil, fmt.Errorf("initiate payment: empty payment id")
	}
	return &p, nil
}

// VerifyPayment returns the verification status of a payment. claimToken is
// the token from InitiatePayment, or "" when the caller did not initiate it.
func (c *Client) VerifyPayment(ctx context.Context, paymentID, claimToken string) (*PaymentStatus, error) {
	var s PaymentStatus
	var query url.Values
	if claimToken != "" {
		query = url.Values{"claim": {claimToken}}
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/verify-payment/"+url.PathEscape(paymentID), query, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
