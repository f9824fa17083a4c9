// Package api serves a small HTTP status API for a running link.
//
// Routes live under /api/v1:
//
//	GET  /health         link state, client id and journal health
//	GET  /subscriptions  registered topic filters
//	POST /publish        publish one message through the link
//	GET  /events         page through the event journal
//	GET  /ws             stream link events over a WebSocket
//
// WebSocket clients receive every event kind until they send a subscribe
// frame, or connect with one or more kind query parameters.
//
// The server is optional and disabled by default. It binds to localhost
// unless configured otherwise and has no authentication, so it must not be
// exposed to untrusted networks.
package api
