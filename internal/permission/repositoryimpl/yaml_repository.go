package repositoryimpl

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/storage"
)

// Prefix is the storage directory holding permission set documents. The
// hot-reload watcher observes the same directory.
const Prefix = "permission_sets"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func setPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", Prefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*permission.PermissionSet, error) {
	data, err := r.storage.Read(ctx, setPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("permission set", err)
	}
	var set permission.PermissionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal permission set: %w", err))
	}
	return &set, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*permission.PermissionSet, error) {
	paths, err := r.storage.List(ctx, Prefix)
	if err != nil {
		return nil, cerr.WrapStorageListError("permission sets", err)
	}
	sets := make([]*permission.PermissionSet, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("permission set", err)
		}
		var set permission.PermissionSet
		if err := yaml.Unmarshal(data, &set); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal permission set: %w", err))
		}
		sets = append(sets, &set)
	}
	return sets, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, set *permission.PermissionSet) error {
	set.UpdatedAt = time.Now()
	data, err := yaml.Marshal(set)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal permission set: %w", err))
	}
	if err := r.storage.Write(ctx, setPath(set.ID), data); err != nil {
		return cerr.WrapStorageWriteError("permission set", err)
	}
	return nil
}
