package permission

import "context"

// Repository provides persistence for permission sets.
type Repository interface {
	Get(ctx context.Context, id string) (*PermissionSet, error)
	List(ctx context.Context) ([]*PermissionSet, error)
	Upsert(ctx context.Context, set *PermissionSet) error
}
