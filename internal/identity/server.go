package identity

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

func (s *Server) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var user User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if user.Name == "" || user.RoleID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name and roleId are required", nil)
		return
	}
	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	user.CreatedAt = time.Now()
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, &user)
}

func (s *Server) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.repo.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, user)
}

func (s *Server) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"users": users})
}

func (s *Server) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var agent Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if agent.Name == "" || agent.RoleID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name and roleId are required", nil)
		return
	}
	if agent.ID == "" {
		agent.ID = ulid.Make().String()
	}
	agent.CreatedAt = time.Now()
	if err := s.repo.CreateAgent(ctx, &agent); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseStatus(ctx, http.StatusCreated, &agent)
}

func (s *Server) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, err := s.repo.GetAgent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, agent)
}

func (s *Server) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"agents": agents})
}
