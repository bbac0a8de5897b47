// Package misp is the concrete upstream collaborator: a client for the MISP
// automation API exposing the narrow invoke(name, params) surface the bridge
// core depends on.
package misp

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

const (
	defaultAPIPort = 443

	// replies quote at most this much of an upstream error body
	maxErrorBody = 512
)

// Config carries the already-validated upstream connection settings.
type Config struct {
	Host    string
	APIPort int // 0 means 443
	APIKey  string

	// InsecureSkipVerify disables server certificate verification
	// (verifyCertificate=false in the service configuration).
	InsecureSkipVerify bool
	// CABundle is a PEM bundle path replacing the system roots when set.
	CABundle string
	// ClientCert and ClientKey enable mutual TLS; both or neither.
	ClientCert string
	ClientKey  string

	Timeout time.Duration // transport-level cap; 0 leaves bounding to the caller's context
}

// Route binds an operation name to its automation API endpoint.
type Route struct {
	Method string
	Path   string
}

// Routes for the operations the stock service configuration names. More are
// added per client via WithRoute.
var defaultRoutes = map[string]Route{
	"new_event":           {Method: http.MethodPost, Path: "/events/add"},
	"search":              {Method: http.MethodPost, Path: "/events/restSearch"},
	"tag":                 {Method: http.MethodPost, Path: "/tags/attachTagToObject"},
	"sighting":            {Method: http.MethodPost, Path: "/sightings/add"},
	"add_named_attribute": {Method: http.MethodPost, Path: "/attributes/add"},
}

// Option configures a Client.
type Option func(*Client)

// WithRoute adds or overrides the endpoint binding for an operation name.
func WithRoute(name string, r Route) Option {
	return func(c *Client) { c.routes[name] = r }
}

// WithHTTPClient replaces the underlying HTTP client, e.g. in tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client calls the MISP automation API. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	routes  map[string]Route
	logger  *slog.Logger
}

var (
	_ cbridge.Upstream        = (*Client)(nil)
	_ cbridge.OperationLister = (*Client)(nil)
)

// New builds a Client. TLS material is loaded here so trust problems surface
// at startup, not on the first request.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("misp host required: %w", berr.ErrInvalidParameters)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("misp api key required: %w", berr.ErrInvalidParameters)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	port := cfg.APIPort
	if port == 0 {
		port = defaultAPIPort
	}

	tlsCfg, err := buildTLS(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: fmt.Sprintf("https://%s:%d", cfg.Host, port),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		routes: make(map[string]Route, len(defaultRoutes)),
		logger: logger,
	}

	for name, r := range defaultRoutes {
		c.routes[name] = r
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Supports reports whether an operation name has an endpoint binding.
func (c *Client) Supports(operation string) bool {
	_, ok := c.routes[operation]
	return ok
}

// Invoke calls one automation API endpoint. Failures map into the closed
// error taxonomy; an upstream cause never propagates raw.
func (c *Client) Invoke(ctx context.Context, operation string, params map[string]any) ([]byte, error) {
	route, ok := c.routes[operation]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", operation, berr.ErrUnknownOperation)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", errors.Join(berr.ErrInvalidParameters, err))
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.baseURL+route.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", errors.Join(berr.ErrInvalidParameters, err))
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("invoking upstream", "operation", operation, "path", route.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %q: %w", operation, errors.Join(berr.ErrUpstreamUnreachable, err))
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return data, nil
	}

	return nil, classifyStatus(operation, resp.StatusCode, data)
}

func classifyTransport(operation string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case isTLSTrust(err):
		return fmt.Errorf("call %q: %w", operation, errors.Join(berr.ErrTLSTrustFailure, err))
	default:
		return fmt.Errorf("call %q: %w", operation, errors.Join(berr.ErrUpstreamUnreachable, err))
	}
}

func classifyStatus(operation string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	kind := berr.ErrUpstreamRejected
	if status == http.StatusBadRequest {
		kind = berr.ErrInvalidParameters
	}

	return fmt.Errorf("call %q: upstream status %d: %s: %w", operation, status, body, kind)
}

func isTLSTrust(err error) bool {
	var (
		cve *tls.CertificateVerificationError
		ua  x509.UnknownAuthorityError
		hn  x509.HostnameError
		ci  x509.CertificateInvalidError
	)

	return errors.As(err, &cve) || errors.As(err, &ua) || errors.As(err, &hn) || errors.As(err, &ci)
}

// buildTLS assembles the client TLS configuration: optional CA bundle,
// optional mutual-TLS key pair, optional verification bypass.
func buildTLS(cfg Config) (*tls.Config, error) {
	if (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return nil, fmt.Errorf("client certificate and key must be set together: %w", berr.ErrInvalidParameters)
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
	} else if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle %q: %w", cfg.CABundle, errors.Join(berr.ErrTLSTrustFailure, err))
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %q contains no usable certificates: %w", cfg.CABundle, berr.ErrTLSTrustFailure)
		}

		tlsCfg.RootCAs = pool
	}

	if cfg.ClientCert != "" {
		pair, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client key pair: %w", errors.Join(berr.ErrTLSTrustFailure, err))
		}

		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	return tlsCfg, nil
}
