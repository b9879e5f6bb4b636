package connection

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/autoprovision/pkg/cerr"
)

// Server manages connection records. In production connections are owned
// by the integration service; these endpoints let it mirror them here.
type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/connections", s.CreateConnection)
	r.Get("/connections", s.ListConnections)
	r.Get("/connections/{connectionID}", s.GetConnection)
	r.Put("/connections/{connectionID}/active", s.SetActive)
}

type CreateConnectionRequest struct {
	ID             string `json:"id,omitempty"`
	WorkspaceID    string `json:"workspace_id"`
	OrganizationID string `json:"organization_id"`
	ProviderKey    string `json:"provider_key"`
}

func (s *Server) CreateConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.WorkspaceID == "" || req.OrganizationID == "" || req.ProviderKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "workspace_id, organization_id and provider_key are required", nil)
		return
	}
	c := New(req.ID, req.WorkspaceID, req.OrganizationID, req.ProviderKey, time.Now())
	if err := s.repo.Create(ctx, c); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, c)
}

func (s *Server) GetConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.repo.Get(ctx, chi.URLParam(r, "connectionID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, c)
}

type ListConnectionsResponse struct {
	Connections []*Connection `json:"connections"`
	Total       int           `json:"total"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}

func (s *Server) ListConnections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, offset := 50, 0
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	conns, total, err := s.repo.List(ctx, q.Get("workspace_id"), limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if conns == nil {
		conns = []*Connection{}
	}
	cerr.SetJSONResponse(ctx, ListConnectionsResponse{
		Connections: conns,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) SetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	c, err := s.repo.Get(ctx, chi.URLParam(r, "connectionID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	c.IsActive = req.Active
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, c)
}
