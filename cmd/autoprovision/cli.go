package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/autoprovision/internal/bootstrap"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/provisioning"
)

type cli struct {
	app    *kingpin.Application
	stdout io.Writer
	stderr io.Writer

	verbose *bool

	provisionCmd       *kingpin.CmdClause
	provisionConnID    *string
	provisionWorkspace *string
	provisionUser      *string
	provisionSkipAgent *bool

	deprovisionCmd       *kingpin.CmdClause
	deprovisionProvider  *string
	deprovisionWorkspace *string

	syncCmd *kingpin.CmdClause

	rediscoverCmd    *kingpin.CmdClause
	rediscoverConnID *string

	blueprintsCmd *kingpin.CmdClause

	statusCmd       *kingpin.CmdClause
	statusProvider  *string
	statusWorkspace *string

	connRegisterCmd      *kingpin.CmdClause
	connRegisterID       *string
	connRegisterWS       *string
	connRegisterOrg      *string
	connRegisterProvider *string

	connListCmd *kingpin.CmdClause
	connListWS  *string
}

func newCLI(stdout, stderr io.Writer) *cli {
	c := &cli{
		app:    kingpin.New("autoprovision", "Provision skills and agents for connected integrations"),
		stdout: stdout,
		stderr: stderr,
	}
	c.app.UsageWriter(stderr)
	c.app.ErrorWriter(stderr)
	c.verbose = c.app.Flag("verbose", "Log at debug level").Short('v').Bool()

	c.provisionCmd = c.app.Command("provision", "Provision the skill and agent for a connection")
	c.provisionConnID = c.provisionCmd.Arg("connection-id", "Connection ID").Required().String()
	c.provisionWorkspace = c.provisionCmd.Flag("workspace", "Workspace ID (defaults to the connection's workspace)").String()
	c.provisionUser = c.provisionCmd.Flag("user", "User recorded as creator").String()
	c.provisionSkipAgent = c.provisionCmd.Flag("skip-agent", "Provision the skill only").Bool()

	c.deprovisionCmd = c.app.Command("deprovision", "Deactivate the records provisioned for a provider")
	c.deprovisionProvider = c.deprovisionCmd.Arg("provider", "Provider key").Required().String()
	c.deprovisionWorkspace = c.deprovisionCmd.Arg("workspace", "Workspace ID").Required().String()

	c.syncCmd = c.app.Command("sync-blueprints", "Upgrade provisioned records to the current blueprint versions")

	c.rediscoverCmd = c.app.Command("rediscover", "Re-run tool discovery for one connection, or every active one")
	c.rediscoverConnID = c.rediscoverCmd.Arg("connection-id", "Connection ID (all active connections when omitted)").String()

	c.blueprintsCmd = c.app.Command("blueprints", "List registered blueprints")

	c.statusCmd = c.app.Command("status", "Show what is provisioned for a provider in a workspace")
	c.statusProvider = c.statusCmd.Arg("provider", "Provider key").Required().String()
	c.statusWorkspace = c.statusCmd.Arg("workspace", "Workspace ID").Required().String()

	connectionCmd := c.app.Command("connection", "Manage integration connections")

	c.connRegisterCmd = connectionCmd.Command("register", "Register a connection")
	c.connRegisterID = c.connRegisterCmd.Flag("id", "Connection ID (generated when omitted)").String()
	c.connRegisterWS = c.connRegisterCmd.Flag("workspace", "Workspace ID").Required().String()
	c.connRegisterOrg = c.connRegisterCmd.Flag("org", "Organization ID").Required().String()
	c.connRegisterProvider = c.connRegisterCmd.Flag("provider", "Provider key").Required().String()

	c.connListCmd = connectionCmd.Command("list", "List connections")
	c.connListWS = c.connListCmd.Flag("workspace", "Filter by workspace ID").String()

	return c
}

// parse returns the full name of the selected command.
func (c *cli) parse(args []string) (string, error) {
	return c.app.Parse(args)
}

// run executes command against a and returns the process exit code.
func (c *cli) run(ctx context.Context, command string, a *bootstrap.App) int {
	engine := a.Engine
	switch command {
	case c.provisionCmd.FullCommand():
		result := engine.Provision(ctx, *c.provisionConnID, provisioning.ProvisionOptions{
			WorkspaceID: *c.provisionWorkspace,
			UserID:      *c.provisionUser,
			SkipAgent:   *c.provisionSkipAgent,
		})
		return c.printJSON(result, result.Success)

	case c.deprovisionCmd.FullCommand():
		result := engine.Deprovision(ctx, *c.deprovisionProvider, *c.deprovisionWorkspace)
		return c.printJSON(result, result.Error == "")

	case c.syncCmd.FullCommand():
		result := engine.SyncBlueprintVersions(ctx)
		return c.printJSON(result, len(result.Errors) == 0)

	case c.rediscoverCmd.FullCommand():
		if *c.rediscoverConnID == "" {
			result := engine.RediscoverAll(ctx)
			return c.printJSON(result, result.Errors == 0)
		}
		result := engine.RediscoverTools(ctx, *c.rediscoverConnID)
		if result == nil {
			color.New(color.FgYellow).Fprintln(c.stderr, "nothing to rediscover")
			return 0
		}
		return c.printJSON(result, true)

	case c.blueprintsCmd.FullCommand():
		bold := color.New(color.Bold)
		for _, bp := range a.Registry.All() {
			bold.Fprint(c.stdout, bp.ProviderKey)
			fmt.Fprintf(c.stdout, "  v%d  skill=%s agent=%s discovery=%s\n",
				bp.Version, bp.Skill.Slug, bp.Agent.Slug, bp.Skill.ToolDiscovery)
		}
		return 0

	case c.statusCmd.FullCommand():
		state, err := engine.Inspect(ctx, *c.statusProvider, *c.statusWorkspace)
		if err != nil {
			return c.fail(err)
		}
		return c.printJSON(state, true)

	case c.connRegisterCmd.FullCommand():
		conn := connection.New(*c.connRegisterID, *c.connRegisterWS, *c.connRegisterOrg, *c.connRegisterProvider, time.Now())
		if err := a.Store.Repositories().Connections.Create(ctx, conn); err != nil {
			return c.fail(err)
		}
		return c.printJSON(conn, true)

	case c.connListCmd.FullCommand():
		conns, _, err := a.Store.Repositories().Connections.List(ctx, *c.connListWS, 0, 0)
		if err != nil {
			return c.fail(err)
		}
		for _, conn := range conns {
			status := color.GreenString("active")
			if !conn.IsActive {
				status = color.RedString("inactive")
			}
			fmt.Fprintf(c.stdout, "%s  %-12s workspace=%s org=%s %s\n",
				conn.ID, conn.ProviderKey, conn.WorkspaceID, conn.OrganizationID, status)
		}
		return 0
	}
	return c.fail(fmt.Errorf("unknown command %q", command))
}

// printJSON writes v and maps ok to the exit code.
func (c *cli) printJSON(v any, ok bool) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail(fmt.Errorf("failed to encode output: %w", err))
	}
	if !ok {
		return 1
	}
	return 0
}

func (c *cli) fail(err error) int {
	color.New(color.FgRed).Fprintf(c.stderr, "error: %v\n", err)
	return 1
}
