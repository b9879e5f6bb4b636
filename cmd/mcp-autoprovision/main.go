package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	// stdout carries the MCP protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := NewConfig()
	if err != nil {
		logger.Error("failed to create config", "error", err)
		os.Exit(1)
	}

	s := newMCPServer(NewAPIClient(cfg))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func newMCPServer(client *APIClient) *server.MCPServer {
	s := server.NewMCPServer(
		"mcp-autoprovision",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s.AddTool(mcp.NewTool("autoprovision_list_blueprints",
		mcp.WithDescription("List the provider blueprints with their versions and discovery modes."),
	), client.ListBlueprintsHandler)

	s.AddTool(mcp.NewTool("autoprovision_status",
		mcp.WithDescription("Show the provisioned skill and agent of a provider in a workspace, with attached tools and pin state."),
		mcp.WithString("provider_key", mcp.Required(), mcp.Description("Provider key, e.g. hubspot")),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace ID")),
	), client.StatusHandler)

	s.AddTool(mcp.NewTool("autoprovision_provision",
		mcp.WithDescription("Create or reactivate the skill and agent for a connection. Safe to repeat."),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Integration connection ID")),
		mcp.WithString("workspace_id", mcp.Description("Workspace ID; defaults to the connection's workspace")),
		mcp.WithString("user_id", mcp.Description("User recorded as creator")),
		mcp.WithBoolean("skip_agent", mcp.Description("Provision the skill only")),
	), client.ProvisionHandler)

	s.AddTool(mcp.NewTool("autoprovision_deprovision",
		mcp.WithDescription("Deactivate the provider's skill and agent in a workspace. Nothing is deleted."),
		mcp.WithString("provider_key", mcp.Required(), mcp.Description("Provider key")),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace ID")),
	), client.DeprovisionHandler)

	s.AddTool(mcp.NewTool("autoprovision_rediscover",
		mcp.WithDescription("Re-run tool discovery and apply the added and removed tools. Without connection_id every active connection is processed."),
		mcp.WithString("connection_id", mcp.Description("Integration connection ID")),
	), client.RediscoverHandler)

	s.AddTool(mcp.NewTool("autoprovision_sync_blueprints",
		mcp.WithDescription("Upgrade provisioned records whose blueprint version is older than the current one."),
	), client.SyncBlueprintsHandler)

	return s
}
