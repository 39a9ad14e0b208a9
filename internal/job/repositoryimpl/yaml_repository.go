package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/storage"
)

const jobsPrefix = "jobs"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func jobPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", jobsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, j *job.AgentJob) error {
	exists, err := r.storage.Exists(ctx, jobPath(j.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("job", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("job %s already exists", j.ID), nil)
	}
	return r.write(ctx, j)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*job.AgentJob, error) {
	data, err := r.storage.Read(ctx, jobPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("job", err)
	}
	var j job.AgentJob
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal job: %w", err))
	}
	return &j, nil
}

func (r *YAMLRepository) Update(ctx context.Context, j *job.AgentJob) error {
	return r.write(ctx, j)
}

func (r *YAMLRepository) List(ctx context.Context) ([]*job.AgentJob, error) {
	paths, err := r.storage.List(ctx, jobsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageListError("jobs", err)
	}
	jobs := make([]*job.AgentJob, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("job", err)
		}
		var j job.AgentJob
		if err := yaml.Unmarshal(data, &j); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal job: %w", err))
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

func (r *YAMLRepository) ListByStatus(ctx context.Context, status job.Status) ([]*job.AgentJob, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]*job.AgentJob, 0, len(all))
	for _, j := range all {
		if j.Status == status {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (r *YAMLRepository) write(ctx context.Context, j *job.AgentJob) error {
	data, err := yaml.Marshal(j)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal job: %w", err))
	}
	if err := r.storage.Write(ctx, jobPath(j.ID), data); err != nil {
		return cerr.WrapStorageWriteError("job", err)
	}
	return nil
}
