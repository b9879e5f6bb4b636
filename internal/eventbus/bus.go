package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	ProviderProvisioned   EventType = "provider.provisioned"
	ProviderDeprovisioned EventType = "provider.deprovisioned"
	BlueprintUpdated      EventType = "blueprint.updated"
	ToolsChanged          EventType = "tools.changed"
)

// Event reports a change made by the provisioning engine. Payload is the
// operation's result value and is never mutated after publishing.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	ProviderKey string    `json:"provider_key,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers event to every subscriber without blocking. A nil Bus
// discards it.
func (b *Bus) Publish(event *Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, workspaceID, providerKey string, payload any) {
	if b == nil {
		return
	}
	b.Publish(&Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		WorkspaceID: workspaceID,
		ProviderKey: providerKey,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
}
