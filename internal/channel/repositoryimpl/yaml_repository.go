package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentgate/agentgate/internal/channel"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/storage"
)

const (
	rolesPrefix    = "scopes/roles"
	contextsPrefix = "scopes/contexts"
	channelsPrefix = "scopes/channels"
)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func writeDoc(ctx context.Context, s storage.Storage, target, path string, doc any) error {
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return cerr.WrapStorageWriteError(target, err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("%s already exists", target), nil)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal %s: %w", target, err))
	}
	if err := s.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError(target, err)
	}
	return nil
}

func readDoc(ctx context.Context, s storage.Storage, target, path string, doc any) error {
	data, err := s.Read(ctx, path)
	if err != nil {
		return cerr.WrapStorageReadError(target, err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal %s: %w", target, err))
	}
	return nil
}

func (r *YAMLRepository) CreateRole(ctx context.Context, role *channel.Role) error {
	return writeDoc(ctx, r.storage, "role", fmt.Sprintf("%s/%s.yaml", rolesPrefix, role.ID), role)
}

func (r *YAMLRepository) GetRole(ctx context.Context, id string) (*channel.Role, error) {
	var role channel.Role
	if err := readDoc(ctx, r.storage, "role", fmt.Sprintf("%s/%s.yaml", rolesPrefix, id), &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *YAMLRepository) CreateContext(ctx context.Context, c *channel.Context) error {
	return writeDoc(ctx, r.storage, "context", fmt.Sprintf("%s/%s.yaml", contextsPrefix, c.ID), c)
}

func (r *YAMLRepository) GetContext(ctx context.Context, id string) (*channel.Context, error) {
	var c channel.Context
	if err := readDoc(ctx, r.storage, "context", fmt.Sprintf("%s/%s.yaml", contextsPrefix, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *YAMLRepository) CreateChannel(ctx context.Context, c *channel.Channel) error {
	return writeDoc(ctx, r.storage, "channel", fmt.Sprintf("%s/%s.yaml", channelsPrefix, c.ID), c)
}

func (r *YAMLRepository) GetChannel(ctx context.Context, id string) (*channel.Channel, error) {
	var c channel.Channel
	if err := readDoc(ctx, r.storage, "channel", fmt.Sprintf("%s/%s.yaml", channelsPrefix, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *YAMLRepository) ListChannels(ctx context.Context) ([]*channel.Channel, error) {
	paths, err := r.storage.List(ctx, channelsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageListError("channels", err)
	}
	channels := make([]*channel.Channel, 0, len(paths))
	for _, p := range paths {
		var c channel.Channel
		if err := readDoc(ctx, r.storage, "channel", p, &c); err != nil {
			return nil, err
		}
		channels = append(channels, &c)
	}
	return channels, nil
}
