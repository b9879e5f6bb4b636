package connection

import "context"

type Repository interface {
	Create(ctx context.Context, c *Connection) error
	Get(ctx context.Context, id string) (*Connection, error)
	List(ctx context.Context, workspaceID string, limit, offset int) ([]*Connection, int, error)
	ListActive(ctx context.Context) ([]*Connection, error)
	Update(ctx context.Context, c *Connection) error
	Delete(ctx context.Context, id string) error
}
