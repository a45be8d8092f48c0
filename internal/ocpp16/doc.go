// Package ocpp16 holds OCPP 1.6 payload types and the Core and security
// extension profiles built from them.
//
// Every type carries json tags for OCPP-J and xml tags for OCPP-S. Root
// elements are unqualified; the SOAP codec places them in the namespace of
// the receiving side.
package ocpp16
