package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// APIClient forwards MCP tool calls to the autoprovision HTTP API.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAPIClient(cfg *Config) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.ServerAddr, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// call sends body as JSON and returns the raw JSON response.
func (c *APIClient) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func toolResult(data json.RawMessage, err error, action string) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error %s: %v", action, err)), nil
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") != nil {
		return mcp.NewToolResultText(string(data)), nil
	}
	return mcp.NewToolResultText(pretty.String()), nil
}

func optionalString(request mcp.CallToolRequest, key string) string {
	s, _ := request.GetArguments()[key].(string)
	return s
}

func optionalBool(request mcp.CallToolRequest, key string) bool {
	b, _ := request.GetArguments()[key].(bool)
	return b
}

func (c *APIClient) ListBlueprintsHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := c.call(ctx, http.MethodGet, "/blueprints", nil)
	return toolResult(data, err, "listing blueprints")
}

func (c *APIClient) StatusHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider, err := request.RequireString("provider_key")
	if err != nil {
		return mcp.NewToolResultError("provider_key argument is required"), nil
	}
	workspace, err := request.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("workspace_id argument is required"), nil
	}
	path := fmt.Sprintf("/workspaces/%s/providers/%s", url.PathEscape(workspace), url.PathEscape(provider))
	data, err := c.call(ctx, http.MethodGet, path, nil)
	return toolResult(data, err, "getting provisioning status")
}

func (c *APIClient) ProvisionHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connectionID, err := request.RequireString("connection_id")
	if err != nil {
		return mcp.NewToolResultError("connection_id argument is required"), nil
	}
	body := map[string]any{
		"workspace_id": optionalString(request, "workspace_id"),
		"user_id":      optionalString(request, "user_id"),
		"skip_agent":   optionalBool(request, "skip_agent"),
	}
	data, err := c.call(ctx, http.MethodPost, "/connections/"+url.PathEscape(connectionID)+"/provision", body)
	return toolResult(data, err, "provisioning")
}

func (c *APIClient) DeprovisionHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider, err := request.RequireString("provider_key")
	if err != nil {
		return mcp.NewToolResultError("provider_key argument is required"), nil
	}
	workspace, err := request.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("workspace_id argument is required"), nil
	}
	path := fmt.Sprintf("/workspaces/%s/providers/%s/deprovision", url.PathEscape(workspace), url.PathEscape(provider))
	data, err := c.call(ctx, http.MethodPost, path, nil)
	return toolResult(data, err, "deprovisioning")
}

func (c *APIClient) RediscoverHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/rediscover"
	if connectionID := optionalString(request, "connection_id"); connectionID != "" {
		path = "/connections/" + url.PathEscape(connectionID) + "/rediscover"
	}
	data, err := c.call(ctx, http.MethodPost, path, nil)
	return toolResult(data, err, "rediscovering tools")
}

func (c *APIClient) SyncBlueprintsHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := c.call(ctx, http.MethodPost, "/blueprints/sync", nil)
	return toolResult(data, err, "syncing blueprints")
}
