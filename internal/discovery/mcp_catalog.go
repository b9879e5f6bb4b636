package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// OrganizationPlaceholder is replaced in the endpoint template with the
// organization ID.
const OrganizationPlaceholder = "{organization}"

// MCPCatalog lists tools from an organization's MCP gateway over the
// streamable HTTP transport. Each call opens a fresh session.
type MCPCatalog struct {
	endpoint       string
	headers        map[string]string
	httpClient     *http.Client
	attemptTimeout time.Duration
	clientInfo     mcp.Implementation
}

var _ Catalog = (*MCPCatalog)(nil)

type MCPOption func(*MCPCatalog)

func WithBearerToken(token string) MCPOption {
	return func(c *MCPCatalog) {
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

func WithHeader(key, value string) MCPOption {
	return func(c *MCPCatalog) {
		c.headers[key] = value
	}
}

func WithHTTPClient(hc *http.Client) MCPOption {
	return func(c *MCPCatalog) {
		c.httpClient = hc
	}
}

// WithAttemptTimeout bounds one ListTools call, handshake included.
func WithAttemptTimeout(d time.Duration) MCPOption {
	return func(c *MCPCatalog) {
		c.attemptTimeout = d
	}
}

func NewMCPCatalog(endpointTemplate string, opts ...MCPOption) (*MCPCatalog, error) {
	if strings.TrimSpace(endpointTemplate) == "" {
		return nil, ErrNotConfigured
	}
	c := &MCPCatalog{
		endpoint:       endpointTemplate,
		headers:        make(map[string]string),
		attemptTimeout: 10 * time.Second,
		clientInfo: mcp.Implementation{
			Name:    "autoprovision",
			Version: "1.0.0",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *MCPCatalog) endpointFor(organizationID string) string {
	return strings.ReplaceAll(c.endpoint, OrganizationPlaceholder, url.PathEscape(organizationID))
}

func (c *MCPCatalog) ListTools(ctx context.Context, organizationID string) ([]string, error) {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(c.httpClient))
	}

	endpoint := c.endpointFor(organizationID)
	mcpClient, err := client.NewStreamableHttpClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", endpoint, err)
	}
	defer mcpClient.Close()

	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      c.clientInfo,
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	var (
		names  []string
		cursor mcp.Cursor
	)
	for {
		req := mcp.ListToolsRequest{}
		req.Params.Cursor = cursor
		result, err := mcpClient.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		if result.NextCursor == "" || result.NextCursor == cursor {
			break
		}
		cursor = result.NextCursor
	}
	return names, nil
}
