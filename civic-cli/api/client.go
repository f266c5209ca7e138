// Package api is the HTTP client the civicctl commands use to talk to a
// node gateway.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultNode = "http://localhost:8080"

// Client calls one node gateway.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultNode
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Error is a non-2xx gateway response.
type Error struct {
	Status   int               `json:"-"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("node returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	TxID           string          `json:"txId"`
	BlockNumber    uint64          `json:"blockNumber"`
	ValidationCode string          `json:"validationCode"`
	Result         json.RawMessage `json:"result,omitempty"`
}

func invokePath(contract, mode, fn string) string {
	return "/api/v1/contracts/" + url.PathEscape(contract) + "/" + mode + "/" + url.PathEscape(fn)
}

// Submit orders a transaction and waits for its commit.
func (c *Client) Submit(ctx context.Context, contract, fn string, args []string) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, invokePath(contract, "submit", fn), map[string][]string{"args": nonNil(args)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Evaluate runs a read-only query and returns its raw result.
func (c *Client) Evaluate(ctx context.Context, contract, fn string, args []string) (json.RawMessage, error) {
	var res struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, invokePath(contract, "evaluate", fn), map[string][]string{"args": nonNil(args)}, &res); err != nil {
		return nil, err
	}
	return res.Result, nil
}

func nonNil(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}

// Block mirrors the gateway's block view.
type Block struct {
	BlockID        string    `json:"block_id"`
	Number         uint64    `json:"number"`
	PrevHash       string    `json:"prevHash"`
	DataHash       string    `json:"dataHash"`
	Timestamp      time.Time `json:"timestamp"`
	TxID           string    `json:"txId"`
	Contract       string    `json:"contract"`
	Function       string    `json:"function"`
	Creator        string    `json:"creator"`
	ValidationCode string    `json:"validationCode"`
	WriteCount     int       `json:"writeCount"`
	Events         []string  `json:"events,omitempty"`
}

// BlockList is one page of the newest blocks.
type BlockList struct {
	Height uint64  `json:"height"`
	Blocks []Block `json:"blocks"`
}

func (c *Client) Blocks(ctx context.Context, limit int) (*BlockList, error) {
	path := "/api/v1/blocks"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out BlockList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Block(ctx context.Context, number uint64) (*Block, error) {
	var out Block
	if err := c.do(ctx, http.MethodGet, "/api/v1/blocks/"+strconv.FormatUint(number, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Event mirrors the gateway's event view.
type Event struct {
	TxID        string          `json:"txId"`
	BlockNumber uint64          `json:"blockNumber"`
	Contract    string          `json:"contract"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EventFilter narrows an events query. Zero values are ignored.
type EventFilter struct {
	Since    *uint64
	Contract string
	Limit    int
}

func (c *Client) Events(ctx context.Context, f EventFilter) ([]Event, error) {
	q := url.Values{}
	if f.Since != nil {
		q.Set("since", strconv.FormatUint(*f.Since, 10))
	}
	if f.Contract != "" {
		q.Set("contract", f.Contract)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/api/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Event
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
