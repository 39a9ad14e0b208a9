package permission

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentgate/agentgate/internal/eventbus"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/pkg/cerr"
)

// Server exposes permission set management over HTTP. Updates are validated
// against the identity store so whitelists can only reference principals
// that exist.
type Server struct {
	repo         Repository
	identityRepo identity.Repository
	bus          *eventbus.Bus
}

func NewServer(repo Repository, identityRepo identity.Repository, bus *eventbus.Bus) *Server {
	return &Server{repo: repo, identityRepo: identityRepo, bus: bus}
}

func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sets, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"permissionSets": sets})
}

func (s *Server) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	set, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, set)
}

func (s *Server) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var set PermissionSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	set.ID = chi.URLParam(r, "id")
	if err := s.validate(r, &set); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.Upsert(ctx, &set); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.bus.PublishNew(eventbus.EventTypePermissionChanged, set.ID, nil)
	cerr.SetJSONResponse(ctx, &set)
}

func (s *Server) validate(r *http.Request, set *PermissionSet) error {
	ctx := r.Context()
	if set.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "permission set id is required", nil)
	}
	if !set.DefaultClearance.Valid() {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid default clearance %q", set.DefaultClearance), nil)
	}
	for kind, grants := range set.Grants {
		for _, g := range grants {
			if g.ResourceID == "" {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("grant for kind %s has no resource id", kind), nil)
			}
			if g.Clearance != ClearanceUnset && !g.Clearance.Valid() {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid clearance %q for resource %s", g.Clearance, g.ResourceID), nil)
			}
		}
	}
	for _, userID := range set.ClearanceUserWhitelist {
		if _, err := s.identityRepo.GetUser(ctx, userID); err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("whitelisted user %s does not exist", userID), nil)
			}
			return err
		}
	}
	for _, agentID := range set.ClearanceAgentWhitelist {
		if _, err := s.identityRepo.GetAgent(ctx, agentID); err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("whitelisted agent %s does not exist", agentID), nil)
			}
			return err
		}
	}
	return nil
}
