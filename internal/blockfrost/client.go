package blockfrost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/suspectuso/ada-tracker/internal/httpapi"
)

var ErrNotFound = errors.New("not found upstream")

// Client is an HTTP client for a Blockfrost-compatible API
type Client struct {
	api *httpapi.Client
}

// NewClient creates a new Blockfrost client
func NewClient(baseURL, projectID string) *Client {
	header := http.Header{}
	if projectID != "" {
		header.Set("project_id", projectID)
	}
	return &Client{
		api: httpapi.New(baseURL, header, 100*time.Millisecond), // 10 rps
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values, out any) error {
	err := c.api.Do(ctx, http.MethodGet, path, query, nil, out)

	var se *httpapi.StatusError
	if !errors.As(err, &se) {
		return err
	}
	if se.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var er ErrorResponse
	if err := json.Unmarshal(se.Body, &er); err == nil && er.Message != "" {
		return &APIError{StatusCode: se.StatusCode, Message: er.Message}
	}
	return &APIError{StatusCode: se.StatusCode, Message: string(se.Body)}
}

// GetAddress returns balance and stake address of an address
func (c *Client) GetAddress(ctx context.Context, address string) (*Address, error) {
	var a Address
	if err := c.doRequest(ctx, "/addresses/"+url.PathEscape(address), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAsset returns metadata of a native asset
func (c *Client) GetAsset(ctx context.Context, unit string) (*Asset, error) {
	var a Asset
	if err := c.doRequest(ctx, "/assets/"+url.PathEscape(unit), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAddressTransactions returns the latest transactions of an address, newest first
func (c *Client) GetAddressTransactions(ctx context.Context, address string, count int) ([]AddressTransaction, error) {
	query := url.Values{}
	query.Set("order", "desc")
	query.Set("count", fmt.Sprintf("%d", count))

	var txs []AddressTransaction
	if err := c.doRequest(ctx, "/addresses/"+url.PathEscape(address)+"/transactions", query, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// GetTxUTXOs returns inputs and outputs of a transaction
func (c *Client) GetTxUTXOs(ctx context.Context, hash string) (*TxUTXOs, error) {
	var u TxUTXOs
	if err := c.doRequest(ctx, "/txs/"+url.PathEscape(hash)+"/utxos", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
