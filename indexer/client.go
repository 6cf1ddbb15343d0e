// Package indexer is the HTTP client for the contract-event indexer.
// The indexer is the primary source for contract activity; the chain
// RPC covers raw BTC only.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the indexer's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("indexer %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer %s: http %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("indexer %s: decode: %w", path, err)
	}
	return nil
}

// Events returns all indexed contract events since the given height,
// plus the indexer's own head.
func (c *Client) Events(ctx context.Context, since uint64) (*EventsResponse, error) {
	q := url.Values{}
	q.Set("since", fmt.Sprintf("%d", since))

	var resp EventsResponse
	if err := c.get(ctx, "/events", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Balances returns the fungible balances of an address per contract.
func (c *Client) Balances(ctx context.Context, addr string) ([]Balance, error) {
	var resp []Balance
	if err := c.get(ctx, "/balances/"+url.PathEscape(addr), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Listings returns the NativeSwap provider book for a contract.
func (c *Client) Listings(ctx context.Context, contract string) (*Listings, error) {
	var resp Listings
	if err := c.get(ctx, "/listings/"+url.PathEscape(contract), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Prices returns the current virtual reserves and price history for a
// contract. Best effort: callers tolerate failures.
func (c *Client) Prices(ctx context.Context, contract string) (*Prices, error) {
	var resp Prices
	if err := c.get(ctx, "/prices/"+url.PathEscape(contract), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reservations returns recent reservations, optionally filtered by
// status.
func (c *Client) Reservations(ctx context.Context, status string, limit int) ([]Reservation, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp []Reservation
	if err := c.get(ctx, "/reservations", q, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Transfers returns one page of historical transfers for an identity.
func (c *Client) Transfers(ctx context.Context, mldsaHash string, limit, skip int) (*TransfersPage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("skip", fmt.Sprintf("%d", skip))

	var resp TransfersPage
	if err := c.get(ctx, "/transfers/"+url.PathEscape(mldsaHash), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
