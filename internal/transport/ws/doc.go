// Package ws carries OCPP-J sessions over WebSocket.
//
// The Listener negotiates the protocol version from the WebSocket
// sub-protocol, names the session after the last path segment of the
// request URL and reports each session to the application exactly once
// when it opens and once when it is lost. Dial is the charge point side of
// the same handshake.
package ws
