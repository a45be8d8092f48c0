// Package centralsystem is the server facade of ocppctl.
//
// Ownership boundary:
// - the table of live charge point sessions across WebSocket and SOAP
// - routing application requests to one session by id
// - admin HTTP routes (health, readiness, metrics, sessions)
// - daemon lifecycle through Service.Run
package centralsystem
