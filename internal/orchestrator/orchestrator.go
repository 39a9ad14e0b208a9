// Package orchestrator owns the job lifecycle: it accepts submissions,
// resolves permissions, computes verdicts, parks jobs awaiting approval and
// dispatches approved work to an execution backend. Every state transition
// is persisted before it is surfaced.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/eventbus"
	"github.com/agentgate/agentgate/internal/executor"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/pkg/panicerr"
)

// ErrApprovalNotAuthorized is returned when an approver does not qualify
// for the job's required clearance. The job stays parked; a different
// approver may try again.
var ErrApprovalNotAuthorized = errors.New("approver does not satisfy the required clearance")

// SubmitRequest describes one action an agent wants to perform.
type SubmitRequest struct {
	AgentID    string         `json:"agentId"`
	ChannelID  string         `json:"channelId"`
	Caller     identity.Ref   `json:"caller"`
	ActionType action.Type    `json:"actionType"`
	ResourceID string         `json:"resourceId,omitempty"`
	Shell      *job.ShellSpec `json:"shell,omitempty"`
}

type Orchestrator struct {
	jobs     job.Repository
	resolver *permission.Resolver
	engine   *permission.Engine
	sandbox  executor.Backend
	process  executor.Backend
	bus      *eventbus.Bus

	// approvalTTL bounds AwaitingApproval parking when non-zero; zero means
	// jobs park until someone acts.
	approvalTTL time.Duration

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
	cancels  map[string]context.CancelFunc
	wg       conc.WaitGroup
}

func New(jobs job.Repository, resolver *permission.Resolver, engine *permission.Engine, sandbox, process executor.Backend, bus *eventbus.Bus, approvalTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		resolver:    resolver,
		engine:      engine,
		sandbox:     sandbox,
		process:     process,
		bus:         bus,
		approvalTTL: approvalTTL,
		jobLocks:    make(map[string]*sync.Mutex),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// lockJob serializes transitions of a single job. Jobs share no mutable
// state, so cross-job operations need no coordination.
func (o *Orchestrator) lockJob(id string) func() {
	o.mu.Lock()
	l, ok := o.jobLocks[id]
	if !ok {
		l = &sync.Mutex{}
		o.jobLocks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Submit creates a job, resolves its permission and either denies it, parks
// it for approval, or starts execution. Approved submissions return
// immediately; callers observe completion via Get.
func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*job.AgentJob, error) {
	if err := req.Caller.Validate(); err != nil {
		return nil, fmt.Errorf("invalid caller: %w", err)
	}
	// Every job is scoped to a channel; without one there is no scope chain
	// to resolve against.
	if req.ChannelID == "" {
		return nil, errors.New("channel id is required")
	}
	if err := req.Shell.Validate(); err != nil {
		return nil, err
	}
	subtype := req.Shell.Subtype()
	// Classification failures are configuration errors, fatal to the
	// request; no job record is created for them.
	_, _, err := action.Classify(req.ActionType, subtype)
	if err != nil {
		return nil, err
	}
	if err := validateShellPresence(req.ActionType, req.Shell); err != nil {
		return nil, err
	}

	j := job.New(req.AgentID, req.ChannelID, req.Caller, req.ActionType, req.ResourceID, req.Shell)
	j.AppendLog("submitted by %s", req.Caller)
	if err := o.jobs.Create(ctx, j); err != nil {
		return nil, err
	}
	o.bus.PublishNew(eventbus.EventTypeJobCreated, j.ID, map[string]string{"agent_id": j.AgentID})

	unlock := o.lockJob(j.ID)
	defer unlock()

	eff, err := o.resolver.ResolveForAgent(ctx, j.AgentID, j.ChannelID, j.ActionType, subtype, j.ResourceID)
	if errors.Is(err, permission.ErrActionNotGranted) {
		j.AppendLog("denied: %v", err)
		if terr := o.transition(ctx, j, job.StatusDenied); terr != nil {
			return nil, terr
		}
		return j, nil
	}
	if err != nil {
		return nil, err
	}

	j.RequiredClearance = eff.Clearance
	decision := o.engine.Evaluate(eff)
	switch decision.Verdict {
	case permission.VerdictApproved:
		j.AppendLog("approved: clearance %s requires no approver", eff.Clearance)
		if err := o.transition(ctx, j, job.StatusExecuting); err != nil {
			return nil, err
		}
		o.dispatch(j)
	case permission.VerdictPendingApproval:
		j.AppendLog("awaiting approval: required clearance %s", eff.Clearance)
		if err := o.transition(ctx, j, job.StatusAwaitingApproval); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Approve re-evaluates a parked job with the given approver. The permission
// is resolved afresh, so edits made while the job was parked take effect.
func (o *Orchestrator) Approve(ctx context.Context, jobID string, approver identity.Ref) (*job.AgentJob, error) {
	if err := approver.Validate(); err != nil {
		return nil, fmt.Errorf("invalid approver: %w", err)
	}
	unlock := o.lockJob(jobID)
	defer unlock()

	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusAwaitingApproval {
		return nil, fmt.Errorf("job %s is %s, not awaiting approval", jobID, j.Status)
	}

	subtype := j.Shell.Subtype()
	eff, err := o.resolver.ResolveForAgent(ctx, j.AgentID, j.ChannelID, j.ActionType, subtype, j.ResourceID)
	if errors.Is(err, permission.ErrActionNotGranted) {
		// The grant disappeared while the job was parked. The approval is
		// rejected; the job stays observable in its parked state.
		return nil, fmt.Errorf("action no longer granted: %w", ErrApprovalNotAuthorized)
	}
	if err != nil {
		return nil, err
	}

	decision, err := o.engine.EvaluateApproval(ctx, eff, j.ChannelID, subtype, approver)
	if err != nil {
		return nil, err
	}
	if decision.Verdict != permission.VerdictApproved {
		j.AppendLog("approval attempt by %s rejected", approver)
		if uerr := o.jobs.Update(ctx, j); uerr != nil {
			return nil, uerr
		}
		return nil, ErrApprovalNotAuthorized
	}

	j.ApprovedBy = approver
	j.RequiredClearance = eff.Clearance
	j.AppendLog("approved by %s (%s)", approver, decision.SatisfiedBy)
	if err := o.transition(ctx, j, job.StatusExecuting); err != nil {
		return nil, err
	}
	o.dispatch(j)
	return j, nil
}

// Cancel moves a non-terminal job to Cancelled. An executing backend is
// cancelled cooperatively and aborts at its next step boundary.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*job.AgentJob, error) {
	unlock := o.lockJob(jobID)
	defer unlock()

	j, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, fmt.Errorf("job %s is already %s", jobID, j.Status)
	}

	o.mu.Lock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
		delete(o.cancels, jobID)
	}
	o.mu.Unlock()

	j.AppendLog("cancelled")
	if err := o.transition(ctx, j, job.StatusCancelled); err != nil {
		return nil, err
	}
	return j, nil
}

func (o *Orchestrator) Get(ctx context.Context, jobID string) (*job.AgentJob, error) {
	return o.jobs.Get(ctx, jobID)
}

func (o *Orchestrator) List(ctx context.Context) ([]*job.AgentJob, error) {
	return o.jobs.List(ctx)
}

func (o *Orchestrator) ListByStatus(ctx context.Context, status job.Status) ([]*job.AgentJob, error) {
	return o.jobs.ListByStatus(ctx, status)
}

// ExpireStale cancels jobs that outstayed the configured approval TTL. With
// a zero TTL parked jobs are left alone; parking indefinitely is the
// default policy.
func (o *Orchestrator) ExpireStale(ctx context.Context) error {
	if o.approvalTTL <= 0 {
		return nil
	}
	parked, err := o.jobs.ListByStatus(ctx, job.StatusAwaitingApproval)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-o.approvalTTL)
	for _, p := range parked {
		if !p.CreatedAt.Before(cutoff) {
			continue
		}
		unlock := o.lockJob(p.ID)
		j, err := o.jobs.Get(ctx, p.ID)
		if err != nil {
			unlock()
			return err
		}
		if j.Status == job.StatusAwaitingApproval {
			j.AppendLog("approval window expired after %s", o.approvalTTL)
			if err := o.transition(ctx, j, job.StatusCancelled); err != nil {
				unlock()
				return err
			}
		}
		unlock()
	}
	return nil
}

// Shutdown cancels in-flight executions and waits for workers to finish.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for id, cancel := range o.cancels {
		cancel()
		delete(o.cancels, id)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// transition persists the job in its new state before anything else
// observes it. The audit trail survives a crash between the transition and
// the response.
func (o *Orchestrator) transition(ctx context.Context, j *job.AgentJob, next job.Status) error {
	if err := j.Transition(next); err != nil {
		return err
	}
	if err := o.jobs.Update(ctx, j); err != nil {
		return err
	}
	o.bus.PublishNew(eventbus.EventTypeJobStatusChanged, j.ID, map[string]string{
		"status":             string(j.Status),
		"agent_id":           j.AgentID,
		"required_clearance": string(j.RequiredClearance),
	})
	return nil
}

// dispatch hands an Executing job to its backend on a worker goroutine.
// The submission or approval call returns while the work runs.
func (o *Orchestrator) dispatch(j *job.AgentJob) {
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[j.ID] = cancel
	o.mu.Unlock()

	jobID := j.ID
	o.wg.Go(func() {
		defer func() {
			o.mu.Lock()
			delete(o.cancels, jobID)
			o.mu.Unlock()
			cancel()
		}()
		if err := panicerr.Safe(func() error {
			return o.execute(runCtx, jobID)
		})(); err != nil {
			slog.Error("job execution worker failed", "job_id", jobID, "error", err)
		}
	})
}

func (o *Orchestrator) execute(ctx context.Context, jobID string) error {
	// Work on a private copy; the job lock is only held to commit results.
	j, err := o.jobs.Get(context.Background(), jobID)
	if err != nil {
		return err
	}

	backend := o.backendFor(j)
	var (
		result  *executor.Result
		execErr error
	)
	if backend == nil {
		// Non-shell actions are pure authorization decisions; the effect
		// happens in the collaborating system once the verdict is Approved.
		result = &executor.Result{Output: "authorized"}
	} else {
		result, execErr = backend.Execute(ctx, &executor.Request{
			JobID:      j.ID,
			SystemUser: j.ResourceID,
			Shell:      j.Shell,
			Log: func(format string, args ...any) {
				o.appendLog(jobID, format, args...)
			},
		})
	}

	unlock := o.lockJob(jobID)
	defer unlock()
	j, err = o.jobs.Get(context.Background(), jobID)
	if err != nil {
		return err
	}
	if j.Status != job.StatusExecuting {
		// Cancelled while the backend was running; the terminal state wins.
		return nil
	}
	if execErr != nil {
		j.ErrorLog = execErr.Error()
		j.AppendLog("execution failed: %v", execErr)
		return o.transition(context.Background(), j, job.StatusFailed)
	}
	j.ResultData = result.Output
	j.AppendLog("execution completed")
	return o.transition(context.Background(), j, job.StatusCompleted)
}

func (o *Orchestrator) backendFor(j *job.AgentJob) executor.Backend {
	switch {
	case j.Shell == nil:
		return nil
	case j.Shell.Safe != nil:
		return o.sandbox
	default:
		return o.process
	}
}

// appendLog records a step-level log line under the job lock so partial
// progress survives regardless of the final outcome.
func (o *Orchestrator) appendLog(jobID, format string, args ...any) {
	unlock := o.lockJob(jobID)
	defer unlock()
	j, err := o.jobs.Get(context.Background(), jobID)
	if err != nil {
		return
	}
	j.AppendLog(format, args...)
	if err := o.jobs.Update(context.Background(), j); err != nil {
		slog.Warn("failed to persist job log entry", "job_id", jobID, "error", err)
	}
}

func validateShellPresence(t action.Type, shell *job.ShellSpec) error {
	switch t {
	case action.TypeExecuteSafeShell:
		if shell == nil || shell.Safe == nil {
			return fmt.Errorf("%s requires a safe shell payload", t)
		}
	case action.TypeExecuteDangerousShell:
		if shell == nil || shell.Dangerous == nil {
			return fmt.Errorf("%s requires a dangerous shell payload", t)
		}
	default:
		if shell != nil {
			return fmt.Errorf("%s does not take a shell payload", t)
		}
	}
	return nil
}
