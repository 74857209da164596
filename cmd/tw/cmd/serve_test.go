package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/sirupsen/logrus"
)

const testFixtures = `
entities:
  - name: invoices
    fields:
      - {name: id}
      - {name: status}
    records:
      - {id: inv1, status: open}
rules:
  - id: settle
    entity_name: invoices
    trigger: {type: interval, duration_seconds: 60}
    operation: {type: updatestatus, status: paid}
responses:
  - id: due
    trigger_time: "+1h"
`

func TestServe(t *testing.T) {
	dir := t.TempDir()
	fixturesPath := filepath.Join(dir, "fixtures.yaml")
	if err := os.WriteFile(fixturesPath, []byte(testFixtures), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := timetravel.DefaultConfig()
	cfg.Enabled = true
	cfg.InitialTime = &start

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, serveOptions{
			Addr:         "127.0.0.1:0",
			DBPath:       filepath.Join(dir, "serve.db"),
			Fixtures:     fixturesPath,
			PollInterval: 10 * time.Millisecond,
			TimeTravel:   cfg,
			Logger:       logging.New(io.Discard, logrus.InfoLevel),
			Ready:        ready,
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	cl := newClient("http://" + addr)

	var rules []map[string]any
	if err := cl.do(ctx, http.MethodGet, "/mutations", nil, &rules); err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0]["id"] != "settle" {
		t.Fatalf("rules: %v", rules)
	}

	if err := cl.do(ctx, http.MethodPost, "/time-travel/advance", map[string]string{"duration": "2h"}, nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var delivered struct {
			Deliveries []json.RawMessage `json:"deliveries"`
		}
		if err := cl.do(ctx, http.MethodGet, "/delivered", nil, &delivered); err != nil {
			t.Fatal(err)
		}
		if len(delivered.Deliveries) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background sweep did not deliver the response")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var records struct {
		Records []map[string]any `json:"records"`
	}
	if err := cl.do(ctx, http.MethodGet, "/entities/invoices/records", nil, &records); err != nil {
		t.Fatal(err)
	}
	if len(records.Records) != 1 || records.Records[0]["status"] != "paid" {
		t.Fatalf("records: %v", records.Records)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestTimeTravelConfigRejectsBadScale(t *testing.T) {
	c, err := newCommand(WithHomeDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.initConfig(); err != nil {
		t.Fatal(err)
	}
	c.config.Set(optionNameScaleFactor, 0.0)
	if _, err := c.timeTravelConfig(); err == nil {
		t.Fatal("expected error for zero scale")
	}
	c.config.Set(optionNameScaleFactor, 2.0)
	c.config.Set(optionNameInitialTime, "2025-01-01T00:00:00Z")
	cfg, err := c.timeTravelConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.InitialTime == nil || cfg.ScaleFactor != 2 {
		t.Fatalf("config: %+v", cfg)
	}
}
