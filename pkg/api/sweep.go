package api

import (
	"net/http"
	"strconv"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/sweeper"
)

type deliveredResponse struct {
	Deliveries []sweeper.Delivery `json:"deliveries"`
}

func (s *server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if s.Sweeper == nil {
		jsonhttp.NotFound(w, "sweeper not configured")
		return
	}
	jsonhttp.OK(w, s.Sweeper.Sweep(r.Context()))
}

func (s *server) deliveredHandler(w http.ResponseWriter, r *http.Request) {
	if s.Sweeper == nil {
		jsonhttp.OK(w, deliveredResponse{Deliveries: []sweeper.Delivery{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonhttp.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	d := s.Sweeper.Delivered(limit)
	if d == nil {
		d = []sweeper.Delivery{}
	}
	jsonhttp.OK(w, deliveredResponse{Deliveries: d})
}

func (s *server) drainHandler(w http.ResponseWriter, _ *http.Request) {
	if s.Sweeper == nil {
		jsonhttp.OK(w, deliveredResponse{Deliveries: []sweeper.Delivery{}})
		return
	}
	d := s.Sweeper.Drain()
	if d == nil {
		d = []sweeper.Delivery{}
	}
	jsonhttp.OK(w, deliveredResponse{Deliveries: d})
}
