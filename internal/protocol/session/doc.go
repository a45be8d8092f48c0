// Package session owns the bidirectional OCPP RPC channel bound to one
// transport connection.
//
// Ownership boundary:
// - session lifecycle (Connecting, Open, Closing, Closed, Faulted)
// - outbound call correlation (CallQueue) and timeouts
// - inbound Call dispatch through a feature.Registry, one handler at a time
// - transport-facing contracts (Communicator, ListenerEvents) and shared config
//
// The session never touches sockets. Transports hand it raw
// frames via OnInbound and receive encoded frames via Communicator.Transmit.
package session
