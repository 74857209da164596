package jsonhttp_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daviddao/timewarp/pkg/jsonhttp"
)

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) jsonhttp.StatusResponse {
	t.Helper()
	var m jsonhttp.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal response body: %s", err)
	}
	return m
}

func TestRespondShapes(t *testing.T) {
	tests := []struct {
		name    string
		respond func(http.ResponseWriter)
		code    int
		message string
	}{
		{"nil body", func(w http.ResponseWriter) { jsonhttp.NotFound(w, nil) }, http.StatusNotFound, "Not Found"},
		{"string body", func(w http.ResponseWriter) { jsonhttp.BadRequest(w, "invalid duration") }, http.StatusBadRequest, "invalid duration"},
		{"error body", func(w http.ResponseWriter) { jsonhttp.InternalServerError(w, errors.New("boom")) }, http.StatusInternalServerError, "boom"},
		{"conflict", func(w http.ResponseWriter) { jsonhttp.Conflict(w, nil) }, http.StatusConflict, "Conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.respond(w)
			if w.Code != tt.code {
				t.Fatalf("got status code %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != jsonhttp.DefaultContentTypeHeader {
				t.Fatalf("got content type %q", ct)
			}
			m := decodeStatus(t, w)
			if m.Code != tt.code || m.Message != tt.message {
				t.Fatalf("got %+v, want code %d message %q", m, tt.code, tt.message)
			}
		})
	}
}

func TestRespondStruct(t *testing.T) {
	w := httptest.NewRecorder()
	jsonhttp.Created(w, struct {
		ID string `json:"id"`
	}{ID: "<r1>"})
	if w.Code != http.StatusCreated {
		t.Fatalf("got status code %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"id":"<r1>"}` {
		t.Fatalf("got body %s", got)
	}
}

func TestMethodHandler(t *testing.T) {
	h := jsonhttp.MethodHandler{
		"POST": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			jsonhttp.OK(w, string(b))
		}),
	}

	t.Run("method allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hi")))
		if w.Code != http.StatusOK {
			t.Fatalf("got status code %d, want %d", w.Code, http.StatusOK)
		}
		if m := decodeStatus(t, w); m.Message != "hi" {
			t.Fatalf("got message %q", m.Message)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("got status code %d, want %d", w.Code, http.StatusMethodNotAllowed)
		}
		if m := decodeStatus(t, w); m.Code != http.StatusMethodNotAllowed {
			t.Fatalf("got message code %d", m.Code)
		}
	})
}

func TestMaxBodyBytesHandler(t *testing.T) {
	h := jsonhttp.NewMaxBodyBytesHandler(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if jsonhttp.HandleBodyReadError(err, w) {
			return
		}
		jsonhttp.OK(w, nil)
	}))

	for _, tc := range []struct {
		body string
		want int
	}{
		{"abc", http.StatusOK},
		{"abcdefgh", http.StatusRequestEntityTooLarge},
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		r.ContentLength = -1
		h.ServeHTTP(w, r)
		if w.Code != tc.want {
			t.Fatalf("body %q: got status code %d, want %d", tc.body, w.Code, tc.want)
		}
	}
}
