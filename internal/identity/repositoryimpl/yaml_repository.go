package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/storage"
)

const (
	usersPrefix  = "identities/users"
	agentsPrefix = "identities/agents"
)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func userPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", usersPrefix, id)
}

func agentPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", agentsPrefix, id)
}

func (r *YAMLRepository) CreateUser(ctx context.Context, u *identity.User) error {
	exists, err := r.storage.Exists(ctx, userPath(u.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("user", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "user already exists", nil)
	}
	data, err := yaml.Marshal(u)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal user: %w", err))
	}
	if err := r.storage.Write(ctx, userPath(u.ID), data); err != nil {
		return cerr.WrapStorageWriteError("user", err)
	}
	return nil
}

func (r *YAMLRepository) GetUser(ctx context.Context, id string) (*identity.User, error) {
	data, err := r.storage.Read(ctx, userPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("user", err)
	}
	var u identity.User
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal user: %w", err))
	}
	return &u, nil
}

func (r *YAMLRepository) ListUsers(ctx context.Context) ([]*identity.User, error) {
	paths, err := r.storage.List(ctx, usersPrefix)
	if err != nil {
		return nil, cerr.WrapStorageListError("users", err)
	}
	users := make([]*identity.User, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("user", err)
		}
		var u identity.User
		if err := yaml.Unmarshal(data, &u); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal user %s: %w", p, err))
		}
		users = append(users, &u)
	}
	return users, nil
}

func (r *YAMLRepository) CreateAgent(ctx context.Context, a *identity.Agent) error {
	exists, err := r.storage.Exists(ctx, agentPath(a.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "agent already exists", nil)
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal agent: %w", err))
	}
	if err := r.storage.Write(ctx, agentPath(a.ID), data); err != nil {
		return cerr.WrapStorageWriteError("agent", err)
	}
	return nil
}

func (r *YAMLRepository) GetAgent(ctx context.Context, id string) (*identity.Agent, error) {
	data, err := r.storage.Read(ctx, agentPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("agent", err)
	}
	var a identity.Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent: %w", err))
	}
	return &a, nil
}

func (r *YAMLRepository) ListAgents(ctx context.Context) ([]*identity.Agent, error) {
	paths, err := r.storage.List(ctx, agentsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageListError("agents", err)
	}
	agents := make([]*identity.Agent, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("agent", err)
		}
		var a identity.Agent
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal agent %s: %w", p, err))
		}
		agents = append(agents, &a)
	}
	return agents, nil
}
