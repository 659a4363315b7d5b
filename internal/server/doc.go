// Package server implements the connection gateway: HTTP and WebSocket
// serving, per-connection pumps, inbound event dispatch and the REST API.
//
// The implementation is organized into specialized files for configuration,
// origin and rate-limit controls, the gateway and its clients, event
// dispatch, routing, and HTTP handlers.
package server
