package job

import "context"

// Repository provides persistence for jobs. Update overwrites the stored
// document; jobs are never deleted.
type Repository interface {
	Create(ctx context.Context, j *AgentJob) error
	Get(ctx context.Context, id string) (*AgentJob, error)
	Update(ctx context.Context, j *AgentJob) error
	List(ctx context.Context) ([]*AgentJob, error)
	ListByStatus(ctx context.Context, status Status) ([]*AgentJob, error)
}
