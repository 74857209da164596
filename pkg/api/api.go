// Package api serves the admin HTTP interface: virtual time control,
// scheduled responses, mutation rules, scenarios, entities and the sweep
// outbox.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/sweeper"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/prometheus/client_golang/prometheus"
)

type Service interface {
	http.Handler
	Metrics() (cs []prometheus.Collector)
}

// DataStore is the virtual data store as seen by the admin API.
type DataStore interface {
	store.VirtualStore
	store.EntityRegistry
	CreateEntity(ctx context.Context, es store.EntitySchema) error
	Insert(ctx context.Context, entity string, rec model.Record) (model.ExecResult, error)
	Schemas() []store.EntitySchema
	SaveScenario(ctx context.Context, sc model.Scenario) error
	LoadScenario(ctx context.Context, name string) (model.Scenario, error)
	ListScenarios(ctx context.Context) ([]model.Scenario, error)
	DeleteScenario(ctx context.Context, name string) error
}

type Options struct {
	Manager *timetravel.Manager
	Sweeper *sweeper.Sweeper
	Store   DataStore
	Logger  logging.Logger
	// Registry is served on /metrics when set.
	Registry *prometheus.Registry
}

type server struct {
	Options
	http.Handler
	metrics metrics
}

func New(o Options) Service {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	s := &server{
		Options: o,
		metrics: newMetrics(),
	}

	s.setupRouting()

	return s
}

var _ DataStore = (*store.Store)(nil)

// readJSON decodes the request body into v. It writes the error response
// itself and reports whether the handler may continue.
func (s *server) readJSON(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if jsonhttp.HandleBodyReadError(err, w) {
			return false
		}
		s.Logger.Debugf("%s: read request body error: %v", op, err)
		s.Logger.Errorf("%s: read request body error", op)
		jsonhttp.InternalServerError(w, "cannot read request")
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.Logger.Debugf("%s: unmarshal request body error: %v", op, err)
		jsonhttp.BadRequest(w, "invalid request body")
		return false
	}
	return true
}
