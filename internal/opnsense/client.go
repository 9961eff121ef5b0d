package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// Appliance API paths.
const (
	AliasGetPath     = "/api/firewall/alias/get"
	AliasSetItemPath = "/api/firewall/alias/setItem/"
	FilterReloadPath = "/api/firewall/filter/reload"
	LeaseSearchPath  = "/api/dhcpv4/leases/searchLease/"

	DefaultTimeout = 10 * time.Second
)

// Operation names used in errors, logs and metrics.
const (
	OpFetchAliases = "fetch_aliases"
	OpWriteAlias   = "write_alias"
	OpReload       = "reload"
	OpSearchLeases = "search_leases"
)

// FirewallClient performs the three alias operations against an appliance.
// Implementations hold no business logic and never retry.
type FirewallClient interface {
	FetchAliases(ctx context.Context) ([]byte, error)
	WriteAlias(ctx context.Context, handle string, body []byte) error
	Reload(ctx context.Context) error
}

// LeaseClient lists DHCP leases for device discovery.
type LeaseClient interface {
	SearchLeases(ctx context.Context) ([]byte, error)
}

// Observer is notified after every remote call.
type Observer interface {
	ObserveRemoteCall(op string, duration time.Duration, err error)
}

// Client talks to the OPNsense REST API.
type Client struct {
	baseURL    string
	apiKey     string
	apiToken   string
	timeout    time.Duration
	verifyTLS  bool
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// Ensure Client implements FirewallClient and LeaseClient.
var (
	_ FirewallClient = (*Client)(nil)
	_ LeaseClient    = (*Client)(nil)
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithVerifyTLS enables certificate verification. Appliances commonly present
// self-signed certificates, so verification is off unless requested.
func WithVerifyTLS(verify bool) ClientOption {
	return func(c *Client) {
		c.verifyTLS = verify
	}
}

// WithHTTPClient replaces the underlying HTTP client; timeout and TLS options are ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithObserver registers a call observer (metrics).
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client for the given appliance.
func NewClient(app domain.Appliance, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(app.BaseURL, "/"),
		apiKey:   app.APIKey,
		apiToken: app.APIToken,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: !c.verifyTLS, //nolint:gosec // self-signed appliance certificates
		}
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: transport,
		}
	}
	return c
}

// FetchAliases returns the raw alias listing.
func (c *Client) FetchAliases(ctx context.Context) ([]byte, error) {
	return c.do(ctx, OpFetchAliases, http.MethodGet, AliasGetPath, nil)
}

// WriteAlias replaces the alias identified by handle with body.
func (c *Client) WriteAlias(ctx context.Context, handle string, body []byte) error {
	if handle == "" {
		return fmt.Errorf("%w: empty alias handle", domain.ErrInvalidInput)
	}
	_, err := c.do(ctx, OpWriteAlias, http.MethodPost, AliasSetItemPath+handle, body)
	return err
}

// Reload asks the appliance to activate pending filter changes.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.do(ctx, OpReload, http.MethodPost, FilterReloadPath, nil)
	return err
}

// SearchLeases returns the raw DHCPv4 lease listing.
func (c *Client) SearchLeases(ctx context.Context) ([]byte, error) {
	return c.do(ctx, OpSearchLeases, http.MethodGet, LeaseSearchPath, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (_ []byte, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRemoteCall(op, time.Since(start), err)
		}
	}()

	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("appliance request", "op", op, "method", method, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("appliance returned error status", "op", op, "status", resp.StatusCode)
		return nil, &domain.RemoteError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
