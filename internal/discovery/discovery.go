// Package discovery finds the tools a provider currently exposes to an
// organization.
package discovery

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNoTools marks an attempt that reached the remote catalog but found
	// no tool for the provider.
	ErrNoTools = errors.New("no matching tools")
	// ErrNotConfigured is returned by a catalog with no endpoint.
	ErrNotConfigured = errors.New("tool discovery endpoint is not configured")
)

// Catalog lists every tool identifier exposed to an organization.
type Catalog interface {
	ListTools(ctx context.Context, organizationID string) ([]string, error)
}

type CatalogFunc func(ctx context.Context, organizationID string) ([]string, error)

func (f CatalogFunc) ListTools(ctx context.Context, organizationID string) ([]string, error) {
	return f(ctx, organizationID)
}

// Client returns the tool identifiers of one provider.
type Client interface {
	Discover(ctx context.Context, organizationID, providerKey string) ([]string, error)
}

// CatalogClient narrows a Catalog to one provider's tools.
type CatalogClient struct {
	catalog Catalog
}

var _ Client = (*CatalogClient)(nil)

func NewCatalogClient(catalog Catalog) *CatalogClient {
	return &CatalogClient{catalog: catalog}
}

func (c *CatalogClient) Discover(ctx context.Context, organizationID, providerKey string) ([]string, error) {
	all, err := c.catalog.ListTools(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return FilterByProvider(all, providerKey), nil
}

// FilterByProvider keeps the identifiers prefixed with "{providerKey}_",
// sorted and de-duplicated.
func FilterByProvider(toolIDs []string, providerKey string) []string {
	prefix := providerKey + "_"
	seen := make(map[string]struct{}, len(toolIDs))
	result := make([]string, 0, len(toolIDs))
	for _, id := range toolIDs {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

type unconfiguredCatalog struct{}

func (unconfiguredCatalog) ListTools(context.Context, string) ([]string, error) {
	return nil, ErrNotConfigured
}

// UnconfiguredCatalog fails every call with ErrNotConfigured, which makes
// dynamic discovery degrade instead of blocking provisioning.
func UnconfiguredCatalog() Catalog {
	return unconfiguredCatalog{}
}
