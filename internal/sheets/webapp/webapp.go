// Package webapp talks to a spreadsheet web-app endpoint that serves the whole
// tracker document on GET and replaces it on POST.
package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tally/internal/core"
	ports "tally/internal/sheets"
)

// The endpoint reads the POST body as plain text, which also keeps the
// request "simple" for browser-deployed scripts.
const saveContentType = "text/plain;charset=utf-8"

// StatusError reports a non-2xx response from the endpoint.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

type Client struct {
	endpoint string
	http     *http.Client
	loads    singleflight.Group
}

var _ ports.DocumentStore = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for endpoint. A zero timeout means 30s.
func New(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("missing TALLY_ENDPOINT_URL: %w", ports.ErrNotConfigured)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{endpoint: endpoint, http: newHTTPClientWithPooling(timeout)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling keeps connections to the endpoint warm between
// the load and the saves that follow it.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Load fetches the document. Concurrent calls share one request.
func (c *Client) Load(ctx context.Context) (core.Document, error) {
	v, err, _ := c.loads.Do("load", func() (any, error) {
		return c.load(ctx)
	})
	if err != nil {
		return core.Document{}, err
	}
	return v.(core.Document).Clone(), nil
}

func (c *Client) load(ctx context.Context) (core.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return core.Document{}, fmt.Errorf("build load request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return core.Document{}, fmt.Errorf("load document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.Document{}, &StatusError{Op: "load document", Status: resp.StatusCode, Body: snippet(resp.Body)}
	}
	var doc core.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Document{Budgets: []core.BudgetEntry{}, Transactions: []core.Transaction{}}, nil
		}
		return core.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Save posts the full document, replacing whatever the endpoint holds.
func (c *Client) Save(ctx context.Context, doc core.Document) error {
	if doc.Budgets == nil {
		doc.Budgets = []core.BudgetEntry{}
	}
	if doc.Transactions == nil {
		doc.Transactions = []core.Transaction{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build save request: %w", err)
	}
	req.Header.Set("Content-Type", saveContentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "save document", Status: resp.StatusCode, Body: snippet(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
