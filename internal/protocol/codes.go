package protocol

// ErrorCode is the errorCode element of a CallError.
type ErrorCode string

const (
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	InternalError                 ErrorCode = "InternalError"
	ProtocolError                 ErrorCode = "ProtocolError"
	SecurityError                 ErrorCode = "SecurityError"
	FormationViolation            ErrorCode = "FormationViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	OccurenceConstraintViolation  ErrorCode = "OccurenceConstraintViolation"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	GenericError                  ErrorCode = "GenericError"
	FormatViolation               ErrorCode = "FormatViolation"
	OccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	MessageTypeNotSupported       ErrorCode = "MessageTypeNotSupported"
	RpcFrameworkError             ErrorCode = "RpcFrameworkError"
)

// FormatViolationFor returns the payload-syntax error code spelled the way
// the given protocol generation spells it.
func FormatViolationFor(v Version) ErrorCode {
	if v == Version201 {
		return FormatViolation
	}
	return FormationViolation
}

// OccurrenceViolationFor returns the occurrence-constraint code for v.
func OccurrenceViolationFor(v Version) ErrorCode {
	if v == Version201 {
		return OccurrenceConstraintViolation
	}
	return OccurenceConstraintViolation
}

// IsKnownErrorCode reports whether code belongs to the canonical set.
func IsKnownErrorCode(code ErrorCode) bool {
	switch code {
	case NotImplemented, NotSupported, InternalError, ProtocolError, SecurityError,
		FormationViolation, PropertyConstraintViolation, OccurenceConstraintViolation,
		TypeConstraintViolation, GenericError, FormatViolation, OccurrenceConstraintViolation,
		MessageTypeNotSupported, RpcFrameworkError:
		return true
	default:
		return false
	}
}
