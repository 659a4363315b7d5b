// Package server wires HTTP handlers and the REST API into a gorilla/mux
// router.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes configures and returns the HTTP router with all application routes:
// health check, WebSocket endpoint, test page, metrics and the REST API.
func (g *Gateway) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", g.WebSocketHandler)
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	g.registerAPI(r)
	return r
}
