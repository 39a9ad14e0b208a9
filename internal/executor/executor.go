// Package executor runs approved shell jobs. Two disjoint backends exist:
// the sandboxed interpreter for safe shell payloads and the unrestricted
// process runner for dangerous ones. Backend selection happens in the
// orchestrator via action classification, never here.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/job"
)

// ErrSandboxViolation marks an execution whose payload tried to reach
// outside its sandbox root. It is fatal to the execution and never retried.
var ErrSandboxViolation = errors.New("sandbox violation")

// Request is one execution handed to a backend.
type Request struct {
	JobID string
	// SystemUser selects the per-user sandbox root for safe shells. The
	// unrestricted backend ignores it.
	SystemUser string
	Shell      *job.ShellSpec
	// Log receives step-level progress lines; they accumulate on the job's
	// audit log regardless of the final outcome.
	Log func(format string, args ...any)
}

func (r *Request) log(format string, args ...any) {
	if r.Log != nil {
		r.Log(format, args...)
	}
}

type Result struct {
	Output string
}

// Backend executes one request. Implementations must honor cooperative
// cancellation at step boundaries.
type Backend interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// RetryPolicy bounds automatic retries around a backend.
type RetryPolicy struct {
	Attempts       int
	Delay          time.Duration
	OverallTimeout time.Duration
}

func PolicyFromEnv(env *config.ExecutorEnv) RetryPolicy {
	return RetryPolicy{
		Attempts:       env.RetryAttempts,
		Delay:          env.RetryDelay,
		OverallTimeout: env.OverallTimeout,
	}
}

// Retrier wraps a backend with bounded retry. Sandbox violations, rejected
// scripts and cancellations are not retried; everything else gets Attempts additional
// tries with a fixed delay, all under the overall timeout.
type Retrier struct {
	backend Backend
	policy  RetryPolicy
}

func NewRetrier(backend Backend, policy RetryPolicy) *Retrier {
	return &Retrier{backend: backend, policy: policy}
}

func (r *Retrier) Execute(ctx context.Context, req *Request) (*Result, error) {
	if r.policy.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.OverallTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= r.policy.Attempts; attempt++ {
		if attempt > 0 {
			req.log("retrying execution (attempt %d of %d)", attempt+1, r.policy.Attempts+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.policy.Delay):
			}
		}
		result, err := r.backend.Execute(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrSandboxViolation) || errors.Is(err, ErrScriptRejected) || ctx.Err() != nil {
			return nil, err
		}
		req.log("execution attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}
