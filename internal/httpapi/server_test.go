package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/naclave/password-oracle/internal/ngram"
	"github.com/naclave/password-oracle/internal/oracle"
	"github.com/naclave/password-oracle/internal/sketch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, withModel bool) *Server {
	t.Helper()
	sk, err := sketch.New(1000, 10, 1)
	if err != nil {
		t.Fatalf("sketch.New: %v", err)
	}
	var model *ngram.Model
	if withModel {
		model = ngram.New(3, ngram.DefaultBits)
		model.Train("hunter2")
	}
	o := oracle.New(testLogger(), sk, model)
	return New(testLogger(), o, "/")
}

// TestFacadeRoutesAddAvailableEntropyAndUnknownCommands exercises add,
// available, an unknown command, and entropy without a loaded model
// through the same server in sequence.
func TestFacadeRoutesAddAvailableEntropyAndUnknownCommands(t *testing.T) {
	srv := newTestServer(t, false)

	addReq := httptest.NewRequest(http.MethodPost, "/add", strings.NewReader(url.Values{"password": {"secret"}}.Encode()))
	addReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	addRec := httptest.NewRecorder()
	srv.ServeHTTP(addRec, addReq)
	if addRec.Code != http.StatusCreated {
		t.Fatalf("POST add status = %d; want 201", addRec.Code)
	}

	availReq := httptest.NewRequest(http.MethodGet, "/available.json?password=secret", nil)
	availRec := httptest.NewRecorder()
	srv.ServeHTTP(availRec, availReq)
	if availRec.Code != http.StatusOK {
		t.Fatalf("GET available.json status = %d; want 200", availRec.Code)
	}
	if got := strings.TrimSpace(availRec.Body.String()); got != "false" {
		t.Fatalf("GET available.json body = %q; want \"false\"", got)
	}

	unknownReq := httptest.NewRequest(http.MethodGet, "/bogus.json?password=secret", nil)
	unknownRec := httptest.NewRecorder()
	srv.ServeHTTP(unknownRec, unknownReq)
	if unknownRec.Code != http.StatusNotFound {
		t.Fatalf("GET unknown command status = %d; want 404", unknownRec.Code)
	}

	entropyReq := httptest.NewRequest(http.MethodGet, "/entropy.json?password=secret", nil)
	entropyRec := httptest.NewRecorder()
	srv.ServeHTTP(entropyRec, entropyReq)
	if entropyRec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET entropy.json with no model status = %d; want 503", entropyRec.Code)
	}
}

func TestUnknownFormat(t *testing.T) {
	srv := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/available.xml?password=secret", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d; want 415", rec.Code)
	}
}

func TestMissingPassword(t *testing.T) {
	srv := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/available.json", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", rec.Code)
	}
}

func TestAllEndpoint(t *testing.T) {
	srv := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/all.json?password=hunter2", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Fatalf("body = %s; want available:true", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"entropy":`) {
		t.Fatalf("body = %s; want an entropy field", rec.Body.String())
	}
}
