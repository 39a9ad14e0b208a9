package channel

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/agentgate/agentgate/pkg/cerr"
)

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var role Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if role.Name == "" || role.PermissionSetID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name and permissionSetId are required", nil)
		return
	}
	if role.ID == "" {
		role.ID = ulid.Make().String()
	}
	role.CreatedAt = time.Now()
	if err := s.repo.CreateRole(ctx, &role); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, &role)
}

func (s *Server) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := s.repo.GetRole(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, role)
}

func (s *Server) HandleCreateContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var c Context
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if c.Name == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name is required", nil)
		return
	}
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.CreatedAt = time.Now()
	if err := s.repo.CreateContext(ctx, &c); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, &c)
}

func (s *Server) HandleCreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var c Channel
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if c.Name == "" || c.ContextID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name and contextId are required", nil)
		return
	}
	if _, err := s.repo.GetContext(ctx, c.ContextID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.CreatedAt = time.Now()
	if err := s.repo.CreateChannel(ctx, &c); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, &c)
}

func (s *Server) HandleGetChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.repo.GetChannel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, c)
}

func (s *Server) HandleListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channels, err := s.repo.ListChannels(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"channels": channels})
}
