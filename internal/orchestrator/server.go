package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/pkg/cerr"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch *Orchestrator
}

func NewServer(orch *Orchestrator) *Server {
	return &Server{orch: orch}
}

func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	j, err := s.orch.Submit(ctx, &req)
	if err != nil {
		if errors.Is(err, action.ErrUnknownActionType) {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), err)
			return
		}
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, j)
}

func (s *Server) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Approver identity.Ref `json:"approver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	j, err := s.orch.Approve(ctx, chi.URLParam(r, "id"), req.Approver)
	if err != nil {
		if errors.Is(err, ErrApprovalNotAuthorized) {
			cerr.SetNewJSONError(ctx, cerr.PermissionDenied, err.Error(), err)
			return
		}
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, j)
}

func (s *Server) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	j, err := s.orch.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, j)
}

func (s *Server) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	j, err := s.orch.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, j)
}

func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		jobs []*job.AgentJob
		err  error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		jobs, err = s.orch.ListByStatus(ctx, job.Status(status))
	} else {
		jobs, err = s.orch.List(ctx)
	}
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"jobs": jobs})
}
