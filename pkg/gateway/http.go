package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/rbac"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBytes caps how much of a gateway response is read.
const maxResponseBytes = 8 << 20

// HTTPGateway reads roles and mappings from the dashboard API. The caller's bearer
// token is taken from the request context.
type HTTPGateway struct {
	baseURL *url.URL
	client  *http.Client
}

// HTTPOption configures an HTTPGateway
type HTTPOption func(*HTTPGateway)

// WithHTTPClient replaces the default instrumented client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = client }
}

// NewHTTPClient returns a client whose transport emits OpenTelemetry spans
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewHTTPGateway creates a gateway rooted at baseURL
func NewHTTPGateway(baseURL string, opts ...HTTPOption) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway URL %q: scheme must be http or https", baseURL)
	}

	g := &HTTPGateway{
		baseURL: u,
		client:  NewHTTPClient(15 * time.Second),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RolesByUser implements rbac.Gateway
func (g *HTTPGateway) RolesByUser(ctx context.Context, userID string) ([]rbac.RoleAssignment, error) {
	body, err := g.get(ctx, "/roles/user/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	return DecodeAssignments(body)
}

// RolePermissionMappings implements rbac.Gateway
func (g *HTTPGateway) RolePermissionMappings(ctx context.Context) ([]rbac.RolePermissionMapping, error) {
	body, err := g.get(ctx, "/role-permissions")
	if err != nil {
		return nil, err
	}
	return DecodeMappings(body)
}

func (g *HTTPGateway) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := g.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", rbac.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if token := contextkeys.GetToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: GET %s: %w", rbac.ErrGatewayUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", rbac.ErrGatewayUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s returned %d", rbac.ErrGatewayUnavailable, path, resp.StatusCode)
	}
	return body, nil
}
