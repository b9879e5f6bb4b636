package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/internal/eventbus"
	"github.com/kazz187/autoprovision/internal/store"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/panicerr"
)

type blueprintSyncOutcome struct {
	providerKey string
	updated     []BlueprintUpdate
	skipped     int
	err         error
}

// SyncBlueprintVersions re-applies every blueprint to the provisioned
// records whose stored version is older. Newer or equal versions are
// skipped, never downgraded. A failing blueprint is reported in Errors and
// does not stop the others.
func (e *Engine) SyncBlueprintVersions(ctx context.Context) *BlueprintSyncResult {
	ctx = operationContext(ctx, "sync_blueprints", nil)
	result := &BlueprintSyncResult{
		Updated: []BlueprintUpdate{},
		Errors:  []string{},
	}

	p := pool.NewWithResults[blueprintSyncOutcome]().WithMaxGoroutines(e.concurrency)
	for _, bp := range e.registry.All() {
		p.Go(func() blueprintSyncOutcome {
			bctx := childContext(ctx, map[string]any{"provider_key": bp.ProviderKey})
			out, err := panicerr.SafeValue(bctx, func(ctx context.Context) (blueprintSyncOutcome, error) {
				return e.syncBlueprint(ctx, bp), nil
			})
			if err != nil {
				out = blueprintSyncOutcome{providerKey: bp.ProviderKey, err: err}
			}
			if out.err != nil {
				slog.ErrorContext(bctx, "blueprint sync failed", "error", out.err)
			}
			return out
		})
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].providerKey < outcomes[j].providerKey
	})

	for _, out := range outcomes {
		result.Updated = append(result.Updated, out.updated...)
		result.Skipped += out.skipped
		if out.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", out.providerKey, out.err))
		}
	}

	slog.InfoContext(ctx, fmt.Sprintf("blueprint sync finished: %d updated, %d skipped, %d errors",
		len(result.Updated), result.Skipped, len(result.Errors)))
	return result
}

func (e *Engine) syncBlueprint(ctx context.Context, bp *blueprint.Blueprint) blueprintSyncOutcome {
	out := blueprintSyncOutcome{providerKey: bp.ProviderKey}
	repos := e.store.Repositories()

	skills, err := repos.Skills.ListProvisioned(ctx, bp.Skill.Slug)
	if err != nil {
		out.err = fmt.Errorf("failed to list skills: %w", err)
		return out
	}
	for _, sk := range skills {
		update, err := e.syncSkillRecord(ctx, bp, sk.ID, sk.WorkspaceID)
		if err != nil {
			out.err = fmt.Errorf("skill %s in %s: %w", bp.Skill.Slug, sk.WorkspaceID, err)
			return out
		}
		if update == nil {
			out.skipped++
			continue
		}
		e.events.PublishNew(eventbus.BlueprintUpdated, update.WorkspaceID, bp.ProviderKey, *update)
		out.updated = append(out.updated, *update)
	}

	agents, err := repos.Agents.ListProvisioned(ctx, bp.Agent.Slug)
	if err != nil {
		out.err = fmt.Errorf("failed to list agents: %w", err)
		return out
	}
	for _, ag := range agents {
		update, err := e.syncAgentRecord(ctx, bp, ag.ID, ag.WorkspaceID)
		if err != nil {
			out.err = fmt.Errorf("agent %s in %s: %w", bp.Agent.Slug, ag.WorkspaceID, err)
			return out
		}
		if update == nil {
			out.skipped++
			continue
		}
		e.events.PublishNew(eventbus.BlueprintUpdated, update.WorkspaceID, bp.ProviderKey, *update)
		out.updated = append(out.updated, *update)
	}
	return out
}

// syncSkillRecord re-reads the skill under the provider lock and updates it
// when its version lags. It returns nil when nothing changed.
func (e *Engine) syncSkillRecord(ctx context.Context, bp *blueprint.Blueprint, skillID, workspaceID string) (*BlueprintUpdate, error) {
	unlock := e.lockProvider(workspaceID, bp.ProviderKey)
	defer unlock()

	var update *BlueprintUpdate
	err := e.store.Transaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		update = nil
		sk, err := repos.Skills.Get(ctx, skillID)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return nil
			}
			return err
		}
		from := sk.Metadata.BlueprintVersion
		if from >= bp.Version {
			return nil
		}
		logInstructionsDiff(ctx, "skill", sk.Slug, from, bp.Version, sk.Instructions, bp.Skill.Instructions)

		now := e.now()
		applySkillSpec(sk, &bp.Skill)
		sk.Metadata.MarkBlueprintSync(now, bp.Version)
		sk.UpdatedAt = now
		if err := repos.Skills.Update(ctx, sk); err != nil {
			return err
		}
		update = &BlueprintUpdate{
			Type:        RecordSkill,
			Slug:        sk.Slug,
			WorkspaceID: sk.WorkspaceID,
			FromVersion: from,
			ToVersion:   bp.Version,
		}
		return nil
	})
	return update, err
}

func (e *Engine) syncAgentRecord(ctx context.Context, bp *blueprint.Blueprint, agentID, workspaceID string) (*BlueprintUpdate, error) {
	unlock := e.lockProvider(workspaceID, bp.ProviderKey)
	defer unlock()

	var update *BlueprintUpdate
	err := e.store.Transaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		update = nil
		ag, err := repos.Agents.Get(ctx, agentID)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return nil
			}
			return err
		}
		from := ag.Metadata.BlueprintVersion
		if from >= bp.Version {
			return nil
		}
		logInstructionsDiff(ctx, "agent", ag.Slug, from, bp.Version, ag.Instructions, bp.Agent.Instructions)

		now := e.now()
		applyAgentSpec(ag, &bp.Agent)
		ag.Metadata.MarkBlueprintSync(now, bp.Version)
		ag.UpdatedAt = now
		if err := repos.Agents.Update(ctx, ag); err != nil {
			return err
		}
		update = &BlueprintUpdate{
			Type:        RecordAgent,
			Slug:        ag.Slug,
			WorkspaceID: ag.WorkspaceID,
			FromVersion: from,
			ToVersion:   bp.Version,
		}
		return nil
	})
	return update, err
}

func logInstructionsDiff(ctx context.Context, kind, slug string, from, to int, before, after string) {
	if before == after || !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fmt.Sprintf("%s/v%d", slug, from),
		ToFile:   fmt.Sprintf("%s/v%d", slug, to),
		Context:  2,
	})
	if err != nil {
		return
	}
	slog.DebugContext(ctx, "instructions changed", "type", kind, "slug", slug, "diff", diff)
}
