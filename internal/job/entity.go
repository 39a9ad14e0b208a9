// Package job defines the unit of orchestrated work and its audit trail.
// An AgentJob is created on submission and mutated only through state
// machine transitions; terminal jobs are never deleted.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/permission"
)

type Status string

const (
	StatusQueued           Status = "QUEUED"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusExecuting        Status = "EXECUTING"
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
	StatusDenied           Status = "DENIED"
	StatusCancelled        Status = "CANCELLED"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDenied, StatusCancelled:
		return true
	default:
		return false
	}
}

var validTransitions = map[Status][]Status{
	StatusQueued:           {StatusAwaitingApproval, StatusExecuting, StatusDenied, StatusCancelled},
	StatusAwaitingApproval: {StatusExecuting, StatusCancelled},
	StatusExecuting:        {StatusCompleted, StatusFailed, StatusCancelled},
}

var ErrInvalidTransition = errors.New("invalid job status transition")

// SafeShell is the structured payload of a sandboxed execution.
type SafeShell struct {
	Subtype action.SafeShellType `yaml:"subtype" json:"subtype"`
	Script  string               `yaml:"script" json:"script"`
}

// DangerousShell is the raw payload handed to a real interpreter.
type DangerousShell struct {
	Subtype action.DangerousShellType `yaml:"subtype" json:"subtype"`
	Command string                    `yaml:"command" json:"command"`
}

// ShellSpec is a tagged variant: exactly one of Safe or Dangerous is set.
type ShellSpec struct {
	Safe      *SafeShell      `yaml:"safe,omitempty" json:"safe,omitempty"`
	Dangerous *DangerousShell `yaml:"dangerous,omitempty" json:"dangerous,omitempty"`
}

func (s *ShellSpec) Validate() error {
	if s == nil {
		return nil
	}
	if (s.Safe == nil) == (s.Dangerous == nil) {
		return errors.New("shell spec must set exactly one of safe or dangerous")
	}
	return nil
}

// Subtype returns the shell subtype in classifier form.
func (s *ShellSpec) Subtype() action.ShellSubtype {
	switch {
	case s == nil:
		return ""
	case s.Safe != nil:
		return action.ShellSubtype(s.Safe.Subtype)
	default:
		return action.ShellSubtype(s.Dangerous.Subtype)
	}
}

// LogEntry is one timestamped line of the job's append-only log.
type LogEntry struct {
	Time    time.Time `yaml:"time" json:"time"`
	Message string    `yaml:"message" json:"message"`
}

// AgentJob is owned exclusively by the orchestrator.
type AgentJob struct {
	ID        string       `yaml:"id" json:"id"`
	AgentID   string       `yaml:"agent_id" json:"agentId"`
	ChannelID string       `yaml:"channel_id" json:"channelId"`
	Caller    identity.Ref `yaml:"caller" json:"caller"`

	ActionType action.Type `yaml:"action_type" json:"actionType"`
	ResourceID string      `yaml:"resource_id,omitempty" json:"resourceId,omitempty"`
	Shell      *ShellSpec  `yaml:"shell,omitempty" json:"shell,omitempty"`

	Status            Status               `yaml:"status" json:"status"`
	RequiredClearance permission.Clearance `yaml:"required_clearance,omitempty" json:"requiredClearance,omitempty"`
	ApprovedBy        identity.Ref         `yaml:"approved_by,omitempty" json:"approvedBy,omitempty"`

	ResultData string     `yaml:"result_data,omitempty" json:"resultData,omitempty"`
	ErrorLog   string     `yaml:"error_log,omitempty" json:"errorLog,omitempty"`
	Log        []LogEntry `yaml:"log" json:"log"`

	CreatedAt   time.Time  `yaml:"created_at" json:"createdAt"`
	StartedAt   *time.Time `yaml:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// New creates a queued job with a fresh ULID.
func New(agentID, channelID string, caller identity.Ref, actionType action.Type, resourceID string, shell *ShellSpec) *AgentJob {
	return &AgentJob{
		ID:         ulid.Make().String(),
		AgentID:    agentID,
		ChannelID:  channelID,
		Caller:     caller,
		ActionType: actionType,
		ResourceID: resourceID,
		Shell:      shell,
		Status:     StatusQueued,
		CreatedAt:  time.Now(),
	}
}

// Transition moves the job to the next status, enforcing the state machine
// and stamping started/completed times.
func (j *AgentJob) Transition(next Status) error {
	for _, allowed := range validTransitions[j.Status] {
		if allowed == next {
			now := time.Now()
			switch next {
			case StatusExecuting:
				j.StartedAt = &now
			case StatusCompleted, StatusFailed, StatusDenied, StatusCancelled:
				j.CompletedAt = &now
			}
			j.Status = next
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", j.Status, next, ErrInvalidTransition)
}

// AppendLog adds a timestamped message to the job's audit log.
func (j *AgentJob) AppendLog(format string, args ...any) {
	j.Log = append(j.Log, LogEntry{
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
}
