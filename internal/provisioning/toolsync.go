package provisioning

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/kazz187/autoprovision/pkg/cerr"
)

// toolAttacher is the attachment half of the skill and agent repositories.
type toolAttacher interface {
	ListToolIDs(ctx context.Context, ownerID string) ([]string, error)
	AddTool(ctx context.Context, ownerID, toolID string) error
	RemoveTool(ctx context.Context, ownerID, toolID string) error
}

// ToolDelta is the difference between an attached and a desired tool set.
type ToolDelta struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
}

func (d ToolDelta) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// diffToolSets returns desired-existing as Added and existing-desired as
// Removed, both sorted.
func diffToolSets(existing, desired []string) ToolDelta {
	existingSet := toSet(existing)
	desiredSet := toSet(desired)
	delta := ToolDelta{
		Added:   []string{},
		Removed: []string{},
	}
	for id := range desiredSet {
		if _, ok := existingSet[id]; ok {
			delta.Unchanged++
			continue
		}
		delta.Added = append(delta.Added, id)
	}
	for id := range existingSet {
		if _, ok := desiredSet[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}
	sort.Strings(delta.Added)
	sort.Strings(delta.Removed)
	return delta
}

// syncTools converges the attached set of ownerID to exactly desired. A
// duplicate insert or a missing row on delete means another writer got
// there first and is not an error; anything else is.
func syncTools(ctx context.Context, repo toolAttacher, ownerID string, desired []string) (ToolDelta, error) {
	existing, err := repo.ListToolIDs(ctx, ownerID)
	if err != nil {
		return ToolDelta{}, err
	}
	delta := diffToolSets(existing, desired)
	if err := applyToolDelta(ctx, repo, ownerID, delta); err != nil {
		return ToolDelta{}, err
	}
	return delta, nil
}

func applyToolDelta(ctx context.Context, repo toolAttacher, ownerID string, delta ToolDelta) error {
	for _, id := range delta.Removed {
		if err := repo.RemoveTool(ctx, ownerID, id); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return fmt.Errorf("failed to detach tool %s: %w", id, err)
		}
	}
	for _, id := range delta.Added {
		if err := repo.AddTool(ctx, ownerID, id); err != nil && !cerr.IsCode(err, cerr.AlreadyExists) {
			return fmt.Errorf("failed to attach tool %s: %w", id, err)
		}
	}
	return nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// unionTools returns the de-duplicated ids of all lists, keeping the order
// of first appearance.
func unionTools(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	if result == nil {
		return []string{}
	}
	return slices.Clip(result)
}
