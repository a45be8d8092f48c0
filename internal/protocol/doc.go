// Package protocol owns the OCPP RPC wire contract shared by every transport binding.
//
// Ownership boundary:
// - the three wire message kinds (Call, CallResult, CallError)
// - canonical CallError codes and protocol versions
// - the Codec contract implemented by frame (OCPP-J) and soapenv (OCPP-S)
package protocol
