// Package api exposes the relay pub/sub operations over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relaypub/relay/pkg/httputil"
	"github.com/relaypub/relay/pkg/observability"
	"github.com/relaypub/relay/pkg/pubsub"
)

// Server is the relay HTTP API.
type Server struct {
	service *pubsub.Service
	router  *mux.Router
	logger  *observability.Logger
}

// NewServer creates the API server and wires its routes.
func NewServer(service *pubsub.Service, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.router.Use(httputil.RequestLogging(logger, metrics))
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/subscribe", s.subscribe).Methods("POST")
	s.router.HandleFunc("/api/unsubscribe", s.unsubscribe).Methods("POST")
	s.router.HandleFunc("/api/provide_data", s.publish).Methods("POST")
	s.router.HandleFunc("/api/ask", s.ask).Methods("POST")
	s.router.HandleFunc("/api/stats", s.stats).Methods("GET")
	s.router.HandleFunc("/api/subscribers/{id}/reactivate", s.reactivate).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
