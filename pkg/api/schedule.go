package api

import (
	"net/http"
	"time"

	"github.com/daviddao/timewarp/pkg/fixtures"
	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/gorilla/mux"
)

type scheduleResponse struct {
	ID          string    `json:"id"`
	TriggerTime time.Time `json:"trigger_time"`
}

type scheduledListResponse struct {
	Responses []model.ScheduledResponse `json:"responses"`
	Count     int                       `json:"count"`
	Next      *time.Time                `json:"next,omitempty"`
}

func (s *server) listScheduledHandler(w http.ResponseWriter, _ *http.Request) {
	sched := s.Manager.Scheduler()
	list := sched.List()
	if list == nil {
		list = []model.ScheduledResponse{}
	}
	resp := scheduledListResponse{Responses: list, Count: len(list)}
	if next, ok := sched.Next(); ok {
		resp.Next = &next
	}
	jsonhttp.OK(w, resp)
}

func (s *server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req fixtures.Response
	if !s.readJSON(w, r, "schedule response", &req) {
		return
	}
	if req.TriggerTime == "" {
		jsonhttp.BadRequest(w, "missing trigger_time")
		return
	}
	sr, err := req.Resolve(s.Manager.Now())
	if err != nil {
		s.Logger.Debugf("schedule response: %v", err)
		jsonhttp.BadRequest(w, err.Error())
		return
	}
	id := s.Manager.Scheduler().Schedule(sr)
	jsonhttp.Created(w, scheduleResponse{ID: id, TriggerTime: sr.TriggerTime})
}

func (s *server) getScheduledHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sr, ok := s.Manager.Scheduler().Get(id)
	if !ok {
		jsonhttp.NotFound(w, "scheduled response not found")
		return
	}
	jsonhttp.OK(w, sr)
}

func (s *server) cancelScheduledHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.Manager.Scheduler().Cancel(id) {
		jsonhttp.NotFound(w, "scheduled response not found")
		return
	}
	jsonhttp.OK(w, nil)
}

func (s *server) clearScheduledHandler(w http.ResponseWriter, _ *http.Request) {
	s.Manager.Scheduler().ClearAll()
	jsonhttp.OK(w, nil)
}
