// Package metadata implements the metadata bag carried by provisioned skills
// and agents: a closed set of provisioning keys plus an open map for keys
// added by anyone else. It serialises as one flat object, so stores that
// filter on paths such as metadata.provisionedBy see the keys directly.
package metadata

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProvisionedByAutoProvisioner marks records owned by the provisioning engine.
const ProvisionedByAutoProvisioner = "auto-provisioner"

// Status is the lifecycle state shared by provisioned skills and agents.
type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
)

type DiscoveryStatus string

const (
	DiscoveryComplete DiscoveryStatus = "complete"
	DiscoveryFailed   DiscoveryStatus = "failed"
	DiscoveryPending  DiscoveryStatus = "pending"
)

const (
	KeyProvisionedBy     = "provisionedBy"
	KeyBlueprintVersion  = "blueprintVersion"
	KeyLastToolSync      = "lastToolSync"
	KeyLastBlueprintSync = "lastBlueprintSync"
	KeyDiscoveryStatus   = "discoveryStatus"
	KeyToolCount         = "toolCount"
	KeyDeactivated       = "deactivated"
	KeyDeactivatedAt     = "deactivatedAt"
)

var knownKeys = []string{
	KeyProvisionedBy,
	KeyBlueprintVersion,
	KeyLastToolSync,
	KeyLastBlueprintSync,
	KeyDiscoveryStatus,
	KeyToolCount,
	KeyDeactivated,
	KeyDeactivatedAt,
}

type Metadata struct {
	ProvisionedBy     string
	BlueprintVersion  int
	LastToolSync      *time.Time
	LastBlueprintSync *time.Time
	DiscoveryStatus   DiscoveryStatus
	ToolCount         *int
	Deactivated       bool
	DeactivatedAt     *time.Time

	// Extra holds every key outside the provisioning set. It is never
	// replaced wholesale by the engine.
	Extra map[string]any
}

// IsAutoProvisioned reports whether the record is owned by the engine.
func (m Metadata) IsAutoProvisioned() bool {
	return m.ProvisionedBy == ProvisionedByAutoProvisioner
}

// Provisioning is the set of keys written on every provisioning upsert.
type Provisioning struct {
	BlueprintVersion int
	SyncedAt         time.Time
	DiscoveryStatus  DiscoveryStatus
	ToolCount        int
}

// ApplyProvisioning overwrites the provisioning keys and clears any
// deactivation marker, leaving Extra untouched.
func (m *Metadata) ApplyProvisioning(p Provisioning) {
	syncedAt := p.SyncedAt.UTC()
	toolCount := p.ToolCount
	m.ProvisionedBy = ProvisionedByAutoProvisioner
	m.BlueprintVersion = p.BlueprintVersion
	m.LastToolSync = &syncedAt
	m.DiscoveryStatus = p.DiscoveryStatus
	m.ToolCount = &toolCount
	m.Deactivated = false
	m.DeactivatedAt = nil
}

// MarkDeactivated records when the owning connection went away.
func (m *Metadata) MarkDeactivated(at time.Time) {
	at = at.UTC()
	m.Deactivated = true
	m.DeactivatedAt = &at
}

// MarkToolSync records a tool set change found by rediscovery.
func (m *Metadata) MarkToolSync(at time.Time, toolCount int) {
	at = at.UTC()
	m.LastToolSync = &at
	m.ToolCount = &toolCount
	m.DiscoveryStatus = DiscoveryComplete
}

// MarkBlueprintSync records a content update from a newer blueprint version.
func (m *Metadata) MarkBlueprintSync(at time.Time, version int) {
	at = at.UTC()
	m.BlueprintVersion = version
	m.LastBlueprintSync = &at
}

// MergeExtra copies src into Extra. Keys from the provisioning set are
// ignored, they can only be changed through the typed fields.
func (m *Metadata) MergeExtra(src map[string]any) {
	if len(src) == 0 {
		return
	}
	if m.Extra == nil {
		m.Extra = make(map[string]any, len(src))
	}
	for k, v := range src {
		if isKnownKey(k) {
			continue
		}
		m.Extra[k] = v
	}
}

func isKnownKey(k string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Map flattens the metadata into a single map. Unset optional keys are
// omitted.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+len(knownKeys))
	maps.Copy(out, m.Extra)
	if m.ProvisionedBy != "" {
		out[KeyProvisionedBy] = m.ProvisionedBy
	}
	if m.BlueprintVersion != 0 {
		out[KeyBlueprintVersion] = m.BlueprintVersion
	}
	if m.LastToolSync != nil {
		out[KeyLastToolSync] = m.LastToolSync.UTC().Format(time.RFC3339Nano)
	}
	if m.LastBlueprintSync != nil {
		out[KeyLastBlueprintSync] = m.LastBlueprintSync.UTC().Format(time.RFC3339Nano)
	}
	if m.DiscoveryStatus != "" {
		out[KeyDiscoveryStatus] = string(m.DiscoveryStatus)
	}
	if m.ToolCount != nil {
		out[KeyToolCount] = *m.ToolCount
	}
	if m.Deactivated {
		out[KeyDeactivated] = true
	}
	if m.DeactivatedAt != nil {
		out[KeyDeactivatedAt] = m.DeactivatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// FromMap is the inverse of Map. Values decoded by JSON (float64) or YAML
// (int, time.Time, string) are both accepted.
func FromMap(in map[string]any) (Metadata, error) {
	var m Metadata
	for k, v := range in {
		if v == nil {
			continue
		}
		var err error
		switch k {
		case KeyProvisionedBy:
			m.ProvisionedBy, err = asString(v)
		case KeyBlueprintVersion:
			m.BlueprintVersion, err = asInt(v)
		case KeyLastToolSync:
			m.LastToolSync, err = asTime(v)
		case KeyLastBlueprintSync:
			m.LastBlueprintSync, err = asTime(v)
		case KeyDiscoveryStatus:
			var s string
			s, err = asString(v)
			m.DiscoveryStatus = DiscoveryStatus(s)
		case KeyToolCount:
			var n int
			n, err = asInt(v)
			m.ToolCount = &n
		case KeyDeactivated:
			m.Deactivated, err = asBool(v)
		case KeyDeactivatedAt:
			m.DeactivatedAt, err = asTime(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
		if err != nil {
			return Metadata{}, fmt.Errorf("metadata key %q: %w", k, err)
		}
	}
	return m, nil
}

// Clone returns a deep enough copy for independent mutation of the typed
// fields and the top level of Extra.
func (m Metadata) Clone() Metadata {
	c := m
	c.Extra = maps.Clone(m.Extra)
	if m.LastToolSync != nil {
		t := *m.LastToolSync
		c.LastToolSync = &t
	}
	if m.LastBlueprintSync != nil {
		t := *m.LastBlueprintSync
		c.LastBlueprintSync = &t
	}
	if m.ToolCount != nil {
		n := *m.ToolCount
		c.ToolCount = &n
	}
	if m.DeactivatedAt != nil {
		t := *m.DeactivatedAt
		c.DeactivatedAt = &t
	}
	return c
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromMap(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Metadata) MarshalYAML() (any, error) {
	return m.Map(), nil
}

func (m *Metadata) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromMap(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("expected bool, got %T", v)
}

func asTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		u := t.UTC()
		return &u, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, err
		}
		parsed = parsed.UTC()
		return &parsed, nil
	}
	return nil, fmt.Errorf("expected timestamp, got %T", v)
}
