package api

import (
	"errors"
	"net/http"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/mutation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *server) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	var rules []model.MutationRule
	if entity := r.URL.Query().Get("entity"); entity != "" {
		rules = s.Manager.Mutations().RulesForEntity(entity)
	} else {
		rules = s.Manager.Mutations().Rules()
	}
	if rules == nil {
		rules = []model.MutationRule{}
	}
	jsonhttp.OK(w, rules)
}

func (s *server) createRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule model.MutationRule
	if !s.readJSON(w, r, "create mutation rule", &rule) {
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := s.Manager.Mutations().AddRule(rule); err != nil {
		if errors.Is(err, mutation.ErrInvalidRule) {
			s.Logger.Debugf("create mutation rule: %v", err)
			jsonhttp.BadRequest(w, err.Error())
			return
		}
		s.Logger.Errorf("create mutation rule %s: %v", rule.ID, err)
		jsonhttp.InternalServerError(w, "cannot add rule")
		return
	}
	added, _ := s.Manager.Mutations().Rule(rule.ID)
	jsonhttp.Created(w, added)
}

func (s *server) getRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok := s.Manager.Mutations().Rule(id)
	if !ok {
		jsonhttp.NotFound(w, "rule not found")
		return
	}
	jsonhttp.OK(w, rule)
}

func (s *server) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.Manager.Mutations().RemoveRule(id) {
		jsonhttp.NotFound(w, "rule not found")
		return
	}
	jsonhttp.OK(w, nil)
}

func (s *server) enableRuleHandler(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.Manager.Mutations().SetRuleEnabled(id, enabled); err != nil {
			if errors.Is(err, mutation.ErrRuleNotFound) {
				jsonhttp.NotFound(w, "rule not found")
				return
			}
			s.Logger.Errorf("set rule %s enabled=%t: %v", id, enabled, err)
			jsonhttp.InternalServerError(w, "cannot update rule")
			return
		}
		rule, _ := s.Manager.Mutations().Rule(id)
		jsonhttp.OK(w, rule)
	}
}
