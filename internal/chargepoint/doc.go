// Package chargepoint is the client facade of ocppctl: one charge point
// that dials a central system with backoff, registers, keeps its heartbeat
// and reconnects when the session is lost.
package chargepoint
