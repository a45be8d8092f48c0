// Package soap carries OCPP 1.6 sessions over SOAP/HTTP.
//
// A charge point has no connection of its own in this binding. The
// listener keeps one session per chargeBoxIdentity, answers each inbound
// request on the HTTP exchange that carried it and relays outbound calls
// as HTTP requests to the address the charge point announced in its From
// header. Sessions that see no traffic for the idle timeout are closed.
package soap
