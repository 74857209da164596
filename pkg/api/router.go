package api

import (
	"fmt"
	"net/http"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"resenje.org/web"
)

const maxBodyBytes = 1 << 20

func (s *server) setupRouting() {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(jsonhttp.NotFoundHandler)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "timewarp")
	})

	router.Handle("/health", jsonhttp.MethodHandler{
		"GET": web.ChainHandlers(
			setAccessLogLevelHandler(0),
			web.FinalHandlerFunc(s.healthHandler),
		),
	})

	if s.Registry != nil {
		router.Handle("/metrics", web.ChainHandlers(
			setAccessLogLevelHandler(0),
			web.FinalHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})),
		))
	}

	// virtual time
	router.Handle("/time-travel/status", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.statusHandler),
	})
	router.Handle("/time-travel/enable", s.post(s.enableHandler))
	router.Handle("/time-travel/disable", s.post(s.disableHandler))
	router.Handle("/time-travel/advance", s.post(s.advanceHandler))
	router.Handle("/time-travel/set", s.post(s.setTimeHandler))
	router.Handle("/time-travel/scale", s.post(s.scaleHandler))
	router.Handle("/time-travel/reset", s.post(s.resetHandler))
	router.Handle("/time-travel/next", jsonhttp.MethodHandler{
		"GET":  http.HandlerFunc(s.nextEventHandler),
		"POST": http.HandlerFunc(s.advanceToNextHandler),
	})

	// scenarios
	router.Handle("/time-travel/scenario/save", s.post(s.saveScenarioHandler))
	router.Handle("/time-travel/scenario/load", s.post(s.loadScenarioHandler))
	router.Handle("/time-travel/scenarios", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.listScenariosHandler),
	})
	router.Handle("/time-travel/scenarios/{name}", jsonhttp.MethodHandler{
		"GET":    http.HandlerFunc(s.getScenarioHandler),
		"DELETE": http.HandlerFunc(s.deleteScenarioHandler),
	})

	// scheduled responses
	router.Handle("/time-travel/schedule", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.listScheduledHandler),
		"POST": web.ChainHandlers(
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandlerFunc(s.scheduleHandler),
		),
		"DELETE": http.HandlerFunc(s.clearScheduledHandler),
	})
	router.Handle("/time-travel/schedule/{id}", jsonhttp.MethodHandler{
		"GET":    http.HandlerFunc(s.getScheduledHandler),
		"DELETE": http.HandlerFunc(s.cancelScheduledHandler),
	})

	// mutation rules
	router.Handle("/mutations", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.listRulesHandler),
		"POST": web.ChainHandlers(
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandlerFunc(s.createRuleHandler),
		),
	})
	router.Handle("/mutations/{id}", jsonhttp.MethodHandler{
		"GET":    http.HandlerFunc(s.getRuleHandler),
		"DELETE": http.HandlerFunc(s.deleteRuleHandler),
	})
	router.Handle("/mutations/{id}/enable", s.post(s.enableRuleHandler(true)))
	router.Handle("/mutations/{id}/disable", s.post(s.enableRuleHandler(false)))

	// entities
	router.Handle("/entities", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.listEntitiesHandler),
		"POST": web.ChainHandlers(
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandlerFunc(s.createEntityHandler),
		),
	})
	router.Handle("/entities/{name}/records", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(s.listRecordsHandler),
		"POST": web.ChainHandlers(
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandlerFunc(s.insertRecordHandler),
		),
	})

	// sweeps
	router.Handle("/sweep", s.post(s.sweepHandler))
	router.Handle("/delivered", jsonhttp.MethodHandler{
		"GET":    http.HandlerFunc(s.deliveredHandler),
		"DELETE": http.HandlerFunc(s.drainHandler),
	})

	s.Handler = web.ChainHandlers(
		newHTTPAccessLogHandler(s.Logger, logrus.DebugLevel, "api access"),
		handlers.CompressHandler,
		handlers.RecoveryHandler(handlers.PrintRecoveryStack(false)),
		s.responseMetricsHandler,
		web.FinalHandler(router),
	)
}

// post is a POST-only route with a bounded body.
func (s *server) post(h http.HandlerFunc) http.Handler {
	return jsonhttp.MethodHandler{
		"POST": web.ChainHandlers(
			jsonhttp.NewMaxBodyBytesHandler(maxBodyBytes),
			web.FinalHandlerFunc(h),
		),
	}
}

func (s *server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}
