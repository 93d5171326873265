// Package httpadmin exposes a read-only JSON introspection surface
// alongside the TCP wire protocol: health, Prometheus metrics, and
// datapoint inspection, routed with gorilla/mux.
package httpadmin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/table"
)

// Server is the admin HTTP server. It never mutates hub state — every
// route reads through Table.GetCopy or Table.Keys.
type Server struct {
	table  *table.Table
	log    *logrus.Logger
	router *mux.Router
}

func New(t *table.Table, log *logrus.Logger) *Server {
	s := &Server{table: t, log: log, router: mux.NewRouter()}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/keys", s.handleKeys).Methods(http.MethodGet)
	s.router.HandleFunc("/dpoint/{name:.*}", s.handleDpoint).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"keys": s.table.Keys()})
}

func (s *Server) handleDpoint(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	point, ok := s.table.GetCopy(name)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		return
	}
	w.Write([]byte(point.JSON()))
}
