package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/gorilla/mux"
)

const defaultRecordsLimit = 100

type recordsResponse struct {
	Entity  string         `json:"entity"`
	Records []model.Record `json:"records"`
}

func (s *server) listEntitiesHandler(w http.ResponseWriter, _ *http.Request) {
	if s.Store == nil {
		jsonhttp.OK(w, []store.EntitySchema{})
		return
	}
	schemas := s.Store.Schemas()
	if schemas == nil {
		schemas = []store.EntitySchema{}
	}
	jsonhttp.OK(w, schemas)
}

func (s *server) createEntityHandler(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonhttp.NotFound(w, "no data store")
		return
	}
	var es store.EntitySchema
	if !s.readJSON(w, r, "create entity", &es) {
		return
	}
	if err := s.Store.CreateEntity(r.Context(), es); err != nil {
		switch {
		case errors.Is(err, store.ErrEntityExists):
			jsonhttp.Conflict(w, "entity already exists")
		case errors.Is(err, store.ErrInvalidSchema):
			s.Logger.Debugf("create entity: %v", err)
			jsonhttp.BadRequest(w, err.Error())
		default:
			s.Logger.Debugf("create entity %s: %v", es.Entity, err)
			s.Logger.Errorf("create entity %s", es.Entity)
			jsonhttp.InternalServerError(w, "cannot create entity")
		}
		return
	}
	created, _ := s.Store.Entity(es.Entity)
	jsonhttp.Created(w, created)
}

func (s *server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.Store == nil {
		jsonhttp.NotFound(w, "entity not found")
		return
	}
	e, ok := s.Store.Entity(name)
	if !ok {
		jsonhttp.NotFound(w, "entity not found")
		return
	}

	limit := defaultRecordsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonhttp.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	stmt := fmt.Sprintf("SELECT * FROM %s LIMIT ?", e.TableName())
	records, err := s.Store.Query(r.Context(), stmt, []any{limit})
	if err != nil {
		s.Logger.Debugf("list records of %s: %v", name, err)
		s.Logger.Errorf("list records of %s", name)
		jsonhttp.InternalServerError(w, "cannot list records")
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	jsonhttp.OK(w, recordsResponse{Entity: name, Records: records})
}

func (s *server) insertRecordHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.Store == nil {
		jsonhttp.NotFound(w, "entity not found")
		return
	}
	var rec model.Record
	if !s.readJSON(w, r, "insert record", &rec) {
		return
	}
	res, err := s.Store.Insert(r.Context(), name, rec)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEntityNotFound):
			jsonhttp.NotFound(w, "entity not found")
		case errors.Is(err, store.ErrInvalidArgument):
			jsonhttp.BadRequest(w, err.Error())
		default:
			s.Logger.Debugf("insert record into %s: %v", name, err)
			s.Logger.Errorf("insert record into %s", name)
			jsonhttp.InternalServerError(w, "cannot insert record")
		}
		return
	}
	jsonhttp.Created(w, res)
}
