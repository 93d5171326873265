package httpadmin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sheinberglab/dserv/internal/table"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestHealthzReturnsOK(t *testing.T) {
	s := New(table.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDpointReturns404WhenMissing(t *testing.T) {
	s := New(table.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/dpoint/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDpointReturnsJSONWhenPresent(t *testing.T) {
	tbl := table.New()
	tbl.Insert(dpoint.NewString("ess/state", "running"))
	s := New(tbl, nil)
	req := httptest.NewRequest(http.MethodGet, "/dpoint/ess/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"name":"ess/state"`) {
		t.Fatalf("expected body to contain the datapoint name, got %s", rec.Body.String())
	}
}
