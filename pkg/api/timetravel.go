package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/daviddao/timewarp/pkg/clock"
	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
)

type enableRequest struct {
	Time  *time.Time `json:"time"`
	Scale *float64   `json:"scale"`
}

type advanceRequest struct {
	Duration string `json:"duration"`
}

type advanceResponse struct {
	Advanced string       `json:"advanced"`
	Status   model.Status `json:"status"`
}

type setTimeRequest struct {
	Time string `json:"time"`
}

type scaleRequest struct {
	Scale float64 `json:"scale"`
}

func (s *server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, s.Manager.Status())
}

func (s *server) enableHandler(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if !s.readJSON(w, r, "enable time travel", &req) {
		return
	}
	if req.Scale != nil && !validScale(*req.Scale) {
		jsonhttp.BadRequest(w, "scale must be a positive number")
		return
	}

	at := s.Manager.Status().RealTime
	if req.Time != nil {
		at = *req.Time
	}
	s.Manager.Enable(at)
	if req.Scale != nil {
		s.Manager.SetScale(*req.Scale)
	}
	jsonhttp.OK(w, s.Manager.Status())
}

func (s *server) disableHandler(w http.ResponseWriter, _ *http.Request) {
	s.Manager.Disable()
	jsonhttp.OK(w, s.Manager.Status())
}

func (s *server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !s.readJSON(w, r, "advance time", &req) {
		return
	}
	d, err := s.Manager.AdvanceBy(req.Duration)
	if err != nil {
		switch {
		case errors.Is(err, clock.ErrInvalidDuration):
			s.Logger.Debugf("advance time: %v", err)
			jsonhttp.BadRequest(w, err.Error())
		case errors.Is(err, timetravel.ErrNotEnabled):
			jsonhttp.BadRequest(w, "time travel is not enabled")
		default:
			s.Logger.Errorf("advance time: %v", err)
			jsonhttp.InternalServerError(w, "cannot advance time")
		}
		return
	}
	jsonhttp.OK(w, advanceResponse{
		Advanced: d.String(),
		Status:   s.Manager.Status(),
	})
}

func (s *server) setTimeHandler(w http.ResponseWriter, r *http.Request) {
	var req setTimeRequest
	if !s.readJSON(w, r, "set time", &req) {
		return
	}
	t, err := clock.ParseTime(req.Time, s.Manager.Now())
	if err != nil {
		s.Logger.Debugf("set time: %v", err)
		jsonhttp.BadRequest(w, err.Error())
		return
	}
	s.Manager.SetTime(t)
	jsonhttp.OK(w, s.Manager.Status())
}

func (s *server) scaleHandler(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if !s.readJSON(w, r, "set scale", &req) {
		return
	}
	if !validScale(req.Scale) {
		jsonhttp.BadRequest(w, "scale must be a positive number")
		return
	}
	s.Manager.SetScale(req.Scale)
	jsonhttp.OK(w, s.Manager.Status())
}

func (s *server) resetHandler(w http.ResponseWriter, _ *http.Request) {
	s.Manager.Reset()
	jsonhttp.OK(w, s.Manager.Status())
}

type nextEventResponse struct {
	Next   *time.Time   `json:"next,omitempty"`
	Status model.Status `json:"status"`
}

func (s *server) nextEventHandler(w http.ResponseWriter, _ *http.Request) {
	resp := nextEventResponse{Status: s.Manager.Status()}
	if next, ok := s.Manager.NextEvent(); ok {
		resp.Next = &next
	}
	jsonhttp.OK(w, resp)
}

func (s *server) advanceToNextHandler(w http.ResponseWriter, _ *http.Request) {
	next, err := s.Manager.AdvanceToNextEvent()
	if err != nil {
		switch {
		case errors.Is(err, timetravel.ErrNotEnabled):
			jsonhttp.BadRequest(w, "time travel is not enabled")
		case errors.Is(err, timetravel.ErrNoPendingEvents):
			jsonhttp.NotFound(w, "no pending events")
		default:
			s.Logger.Errorf("advance to next event: %v", err)
			jsonhttp.InternalServerError(w, "cannot advance time")
		}
		return
	}
	jsonhttp.OK(w, nextEventResponse{Next: &next, Status: s.Manager.Status()})
}

func validScale(f float64) bool {
	return f > 0 && f <= maxScale
}

// maxScale is about eleven virtual days per real second.
const maxScale = 1e6

type saveScenarioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type loadScenarioRequest struct {
	Name     string          `json:"name"`
	Scenario *model.Scenario `json:"scenario"`
}

type loadScenarioResponse struct {
	Name     string       `json:"name"`
	Status   model.Status `json:"status"`
	Warnings []string     `json:"warnings,omitempty"`
}

func (s *server) saveScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req saveScenarioRequest
	if !s.readJSON(w, r, "save scenario", &req) {
		return
	}
	if req.Name == "" {
		jsonhttp.BadRequest(w, "missing scenario name")
		return
	}

	sc := s.Manager.SaveScenario(req.Name, req.Description)
	if s.Store != nil {
		if err := s.Store.SaveScenario(r.Context(), sc); err != nil {
			s.Logger.Debugf("save scenario %s: %v", req.Name, err)
			s.Logger.Errorf("save scenario %s", req.Name)
			jsonhttp.InternalServerError(w, "cannot save scenario")
			return
		}
	}
	jsonhttp.OK(w, sc)
}

func (s *server) loadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req loadScenarioRequest
	if !s.readJSON(w, r, "load scenario", &req) {
		return
	}

	var sc model.Scenario
	switch {
	case req.Scenario != nil:
		sc = *req.Scenario
	case req.Name != "":
		if s.Store == nil {
			jsonhttp.NotFound(w, "scenario not found")
			return
		}
		var err error
		sc, err = s.Store.LoadScenario(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, store.ErrScenarioNotFound) {
				jsonhttp.NotFound(w, "scenario not found")
				return
			}
			s.Logger.Debugf("load scenario %s: %v", req.Name, err)
			s.Logger.Errorf("load scenario %s", req.Name)
			jsonhttp.InternalServerError(w, "cannot load scenario")
			return
		}
	default:
		jsonhttp.BadRequest(w, "missing scenario name")
		return
	}

	resp := loadScenarioResponse{Name: sc.Name}
	if err := s.Manager.LoadScenario(sc); err != nil {
		s.Logger.Warningf("load scenario %s: %v", sc.Name, err)
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				resp.Warnings = append(resp.Warnings, e.Error())
			}
		} else {
			resp.Warnings = []string{err.Error()}
		}
	}
	resp.Status = s.Manager.Status()
	jsonhttp.OK(w, resp)
}

func (s *server) listScenariosHandler(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonhttp.OK(w, []model.Scenario{})
		return
	}
	list, err := s.Store.ListScenarios(r.Context())
	if err != nil {
		s.Logger.Debugf("list scenarios: %v", err)
		s.Logger.Errorf("list scenarios")
		jsonhttp.InternalServerError(w, "cannot list scenarios")
		return
	}
	if list == nil {
		list = []model.Scenario{}
	}
	jsonhttp.OK(w, list)
}

func (s *server) getScenarioHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.Store == nil {
		jsonhttp.NotFound(w, "scenario not found")
		return
	}
	sc, err := s.Store.LoadScenario(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrScenarioNotFound) {
			jsonhttp.NotFound(w, "scenario not found")
			return
		}
		s.Logger.Debugf("get scenario %s: %v", name, err)
		s.Logger.Errorf("get scenario %s", name)
		jsonhttp.InternalServerError(w, "cannot get scenario")
		return
	}
	jsonhttp.OK(w, sc)
}

func (s *server) deleteScenarioHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.Store == nil {
		jsonhttp.NotFound(w, "scenario not found")
		return
	}
	if err := s.Store.DeleteScenario(r.Context(), name); err != nil {
		if errors.Is(err, store.ErrScenarioNotFound) {
			jsonhttp.NotFound(w, "scenario not found")
			return
		}
		s.Logger.Debugf("delete scenario %s: %v", name, err)
		s.Logger.Errorf("delete scenario %s", name)
		jsonhttp.InternalServerError(w, "cannot delete scenario")
		return
	}
	jsonhttp.OK(w, nil)
}
