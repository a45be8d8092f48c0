// Package ocpp201 holds OCPP 2.0.1 payload types and the functional blocks
// built from them. 2.0.1 is carried over OCPP-J only.
package ocpp201
