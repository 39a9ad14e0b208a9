package channel

import "context"

// Repository provides persistence for roles, contexts and channels.
type Repository interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)

	CreateContext(ctx context.Context, c *Context) error
	GetContext(ctx context.Context, id string) (*Context, error)

	CreateChannel(ctx context.Context, c *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
	ListChannels(ctx context.Context) ([]*Channel, error)
}
