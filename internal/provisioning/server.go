package provisioning

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/autoprovision/internal/blueprint"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/clog"
)

// Server exposes the engine to webhook senders and schedulers. Operation
// failures are part of the 200 response body; only malformed requests and
// lookups of unknown resources produce error statuses.
type Server struct {
	engine *Engine
}

func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/connections/{connectionID}/provision", s.Provision)
	r.Post("/connections/{connectionID}/rediscover", s.Rediscover)
	r.Post("/workspaces/{workspaceID}/providers/{providerKey}/deprovision", s.Deprovision)
	r.Get("/workspaces/{workspaceID}/providers/{providerKey}", s.Inspect)
	r.Post("/blueprints/sync", s.SyncBlueprints)
	r.Post("/rediscover", s.RediscoverAll)
	r.Get("/blueprints", s.ListBlueprints)
}

func (s *Server) Provision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var opts ProvisionOptions
	if err := decodeOptionalJSON(r.Body, &opts); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	connectionID := chi.URLParam(r, "connectionID")
	clog.AddAttribute(ctx, "connection_id", connectionID)
	cerr.SetJSONResponse(ctx, s.engine.Provision(ctx, connectionID, opts))
}

func (s *Server) Deprovision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerKey := chi.URLParam(r, "providerKey")
	workspaceID := chi.URLParam(r, "workspaceID")
	cerr.SetJSONResponse(ctx, s.engine.Deprovision(ctx, providerKey, workspaceID))
}

func (s *Server) SyncBlueprints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.SetJSONResponse(ctx, s.engine.SyncBlueprintVersions(ctx))
}

type rediscoverResponse struct {
	Result *ToolRediscoveryResult `json:"result"`
}

func (s *Server) Rediscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	connectionID := chi.URLParam(r, "connectionID")
	cerr.SetJSONResponse(ctx, rediscoverResponse{Result: s.engine.RediscoverTools(ctx, connectionID)})
}

func (s *Server) RediscoverAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.SetJSONResponse(ctx, s.engine.RediscoverAll(ctx))
}

type listBlueprintsResponse struct {
	Blueprints []*blueprint.Blueprint `json:"blueprints"`
}

func (s *Server) ListBlueprints(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), listBlueprintsResponse{Blueprints: s.engine.Registry().All()})
}

func (s *Server) Inspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.engine.Inspect(ctx, chi.URLParam(r, "providerKey"), chi.URLParam(r, "workspaceID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, state)
}

// decodeOptionalJSON decodes body into v; an empty body leaves v untouched.
func decodeOptionalJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
