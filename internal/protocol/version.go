package protocol

import "strings"

// Version is a negotiated OCPP protocol generation.
type Version string

const (
	Version16  Version = "1.6"
	Version201 Version = "2.0.1"
)

const (
	SubProtocol16  = "ocpp1.6"
	SubProtocol201 = "ocpp2.0.1"
)

// SubProtocol returns the WebSocket sub-protocol token for v.
func (v Version) SubProtocol() string {
	switch v {
	case Version16:
		return SubProtocol16
	case Version201:
		return SubProtocol201
	default:
		return ""
	}
}

func (v Version) Valid() bool {
	return v == Version16 || v == Version201
}

// VersionFromSubProtocol maps a WebSocket sub-protocol token to a version.
func VersionFromSubProtocol(token string) (Version, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case SubProtocol16:
		return Version16, true
	case SubProtocol201:
		return Version201, true
	default:
		return "", false
	}
}

// SupportedSubProtocols lists tokens for the given versions in preference order.
func SupportedSubProtocols(versions ...Version) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if token := v.SubProtocol(); token != "" {
			out = append(out, token)
		}
	}
	return out
}
