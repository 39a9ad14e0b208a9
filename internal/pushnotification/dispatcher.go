package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentgate/agentgate/internal/eventbus"
	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/internal/permission"
)

// Dispatcher listens on the event bus and pushes a notification whenever a
// job parks awaiting approval, so approvers learn about it without polling.
// When the job's permission set names whitelisted approver users, only their
// endpoints are notified.
type Dispatcher struct {
	eventBus *eventbus.Bus
	jobRepo  job.Repository
	resolver *permission.Resolver
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, jobRepo job.Repository, resolver *permission.Resolver, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		jobRepo:  jobRepo,
		resolver: resolver,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.Type == eventbus.EventTypeJobStatusChanged &&
				event.Metadata["status"] == string(job.StatusAwaitingApproval) {
				d.handleAwaitingApproval(ctx, event)
			}
		}
	}
}

func (d *Dispatcher) handleAwaitingApproval(ctx context.Context, event *eventbus.Event) {
	j, err := d.jobRepo.Get(ctx, event.ResourceID)
	if err != nil {
		slog.Error("push dispatcher: failed to get job", "id", event.ResourceID, "error", err)
		return
	}

	var targets []string
	eff, err := d.resolver.ResolveForAgent(ctx, j.AgentID, j.ChannelID, j.ActionType, j.Shell.Subtype(), j.ResourceID)
	if err != nil {
		// The permission may have changed since the job parked; fall back
		// to notifying everyone rather than losing the notification.
		slog.Warn("push dispatcher: failed to resolve approvers", "job_id", j.ID, "error", err)
	} else {
		targets = approverTargets(eff)
	}

	d.sender.Send(ctx, &NotificationPayload{
		Title: "Approval Required",
		Body:  fmt.Sprintf("Agent %s wants to run %s (clearance %s)", j.AgentID, j.ActionType, j.RequiredClearance),
		URL:   fmt.Sprintf("/jobs/%s", j.ID),
		Tag:   j.ID,
	}, targets)
}

// approverTargets picks the users to notify for a parked job. When the
// required clearance accepts whitelisted-user approval and the winning set
// names such users, the notification targets them; otherwise it goes to
// every subscriber, since any sufficiently cleared user may approve.
func approverTargets(eff *permission.EffectivePermission) []string {
	for _, cond := range permission.SatisfyingConditions(eff.Clearance) {
		if cond == permission.CondWhitelistedUser && len(eff.Set.ClearanceUserWhitelist) > 0 {
			return eff.Set.ClearanceUserWhitelist
		}
	}
	return nil
}
