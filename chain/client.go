// Package chain is the JSON-RPC client for the L1 node. It covers only
// the handful of calls the pipeline needs: head height, full blocks,
// owner-info records, balances and UTXO sets.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trypto13/jeet-tracker/metrics"
)

// Client is an RPC client with connection pooling and request
// deduplication for owner-info lookups (several subscriptions can race
// to resolve the same address on one tick).
type Client struct {
	url        string
	httpClient *http.Client

	sfOwner singleflight.Group
}

// NewClient creates a client with a pooled transport.
func NewClient(url string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RPCRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, truncate(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if rpcResp.Error != nil {
		metrics.RPCRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	metrics.RPCRequestsTotal.WithLabelValues("success").Inc()
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func truncate(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// GetBlockNumber returns the current chain head height.
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	var result json.Number
	if err := c.call(ctx, "btc_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	h, err := result.Int64()
	if err != nil {
		return 0, fmt.Errorf("btc_blockNumber: bad height %q", result)
	}
	return uint64(h), nil
}

// GetBlock returns the full block at the given height, transactions
// included.
func (c *Client) GetBlock(ctx context.Context, height uint64) (*Block, error) {
	var blk Block
	if err := c.call(ctx, "btc_getBlockByNumber", []any{height, true}, &blk); err != nil {
		return nil, err
	}
	if blk.Height == 0 {
		blk.Height = height
	}
	return &blk, nil
}

// GetPublicKeyInfo returns the owner-info record for an address, or nil
// if the address has no on-chain key material yet.
func (c *Client) GetPublicKeyInfo(ctx context.Context, addr string) (*OwnerInfo, error) {
	v, err, _ := c.sfOwner.Do(addr, func() (any, error) {
		var raw json.RawMessage
		if err := c.call(ctx, "btc_getPublicKeyInfo", []any{addr, false}, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 || string(raw) == "null" {
			return (*OwnerInfo)(nil), nil
		}
		var info OwnerInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("btc_getPublicKeyInfo: decode: %w", err)
		}
		return &info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*OwnerInfo), nil
}

// GetBalance returns the BTC balance of an address in satoshis.
func (c *Client) GetBalance(ctx context.Context, addr string, confirmedOnly bool) (int64, error) {
	var result Satoshis
	if err := c.call(ctx, "btc_getBalance", []any{addr, confirmedOnly}, &result); err != nil {
		return 0, err
	}
	return result.Int64(), nil
}

// GetCSV1Address returns the CSV-timelocked address form derived from
// the same identity as the owner address.
func (c *Client) GetCSV1Address(ctx context.Context, owner string) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "btc_getCSVForAddress", []any{owner, 1}, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

// GetUTXOs returns the current unspent outputs for an address. CSV
// address forms live behind a distinct manager path on the node, hence
// the isCSV flag.
func (c *Client) GetUTXOs(ctx context.Context, addr string, isCSV bool) ([]UTXO, error) {
	params := map[string]any{
		"address":           addr,
		"optimize":          false,
		"mergePendingUTXOs": false,
	}
	if isCSV {
		params["isCSV"] = true
	}
	var result []UTXO
	if err := c.call(ctx, "btc_getUTXOs", []any{params}, &result); err != nil {
		return nil, err
	}
	return result, nil
}
