package ocpp201

import (
	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

const (
	maxIdentifier = 36
	maxString20   = 20
	maxString25   = 25
	maxString50   = 50
	maxString512  = 512
)

type IdTokenEnum string

const (
	IdTokenCentral         IdTokenEnum = "Central"
	IdTokenEMAID           IdTokenEnum = "eMAID"
	IdTokenISO14443        IdTokenEnum = "ISO14443"
	IdTokenISO15693        IdTokenEnum = "ISO15693"
	IdTokenKeyCode         IdTokenEnum = "KeyCode"
	IdTokenLocal           IdTokenEnum = "Local"
	IdTokenMacAddress      IdTokenEnum = "MacAddress"
	IdTokenNoAuthorization IdTokenEnum = "NoAuthorization"
)

var idTokenTypes = []string{
	string(IdTokenCentral),
	string(IdTokenEMAID),
	string(IdTokenISO14443),
	string(IdTokenISO15693),
	string(IdTokenKeyCode),
	string(IdTokenLocal),
	string(IdTokenMacAddress),
	string(IdTokenNoAuthorization),
}

type IdToken struct {
	IdToken string      `json:"idToken"`
	Type    IdTokenEnum `json:"type"`
}

func (t *IdToken) Validate() error {
	v := schema.For("IdToken").OneOf("type", string(t.Type), idTokenTypes...)
	if t.Type == IdTokenNoAuthorization {
		v.MaxLen("idToken", t.IdToken, maxIdentifier)
	} else {
		v.Required("idToken", t.IdToken, maxIdentifier)
	}
	return v.Err()
}

type AuthorizationStatus string

const (
	AuthorizationAccepted           AuthorizationStatus = "Accepted"
	AuthorizationBlocked            AuthorizationStatus = "Blocked"
	AuthorizationConcurrentTx       AuthorizationStatus = "ConcurrentTx"
	AuthorizationExpired            AuthorizationStatus = "Expired"
	AuthorizationInvalid            AuthorizationStatus = "Invalid"
	AuthorizationNoCredit           AuthorizationStatus = "NoCredit"
	AuthorizationNotAllowedTypeEVSE AuthorizationStatus = "NotAllowedTypeEVSE"
	AuthorizationNotAtThisLocation  AuthorizationStatus = "NotAtThisLocation"
	AuthorizationNotAtThisTime      AuthorizationStatus = "NotAtThisTime"
	AuthorizationUnknown            AuthorizationStatus = "Unknown"
)

var authorizationStatuses = []string{
	string(AuthorizationAccepted),
	string(AuthorizationBlocked),
	string(AuthorizationConcurrentTx),
	string(AuthorizationExpired),
	string(AuthorizationInvalid),
	string(AuthorizationNoCredit),
	string(AuthorizationNotAllowedTypeEVSE),
	string(AuthorizationNotAtThisLocation),
	string(AuthorizationNotAtThisTime),
	string(AuthorizationUnknown),
}

type IdTokenInfo struct {
	Status              AuthorizationStatus `json:"status"`
	CacheExpiryDateTime string              `json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority    *int                `json:"chargingPriority,omitempty"`
}

func (i *IdTokenInfo) Validate() error {
	v := schema.For("IdTokenInfo").OneOf("status", string(i.Status), authorizationStatuses...)
	if i.ChargingPriority != nil {
		p := *i.ChargingPriority
		v.Check("chargingPriority", p >= -9 && p <= 9, "must be within -9..9")
	}
	return v.Err()
}

// StatusInfo carries optional detail for a status answer.
type StatusInfo struct {
	ReasonCode     string `json:"reasonCode"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

func (s *StatusInfo) Validate() error {
	return schema.For("StatusInfo").
		Required("reasonCode", s.ReasonCode, maxString20).
		MaxLen("additionalInfo", s.AdditionalInfo, maxString512).
		Err()
}

type EVSE struct {
	ID          int  `json:"id"`
	ConnectorID *int `json:"connectorId,omitempty"`
}

func (e *EVSE) Validate() error {
	v := schema.For("EVSE").Min("id", e.ID, 0)
	if e.ConnectorID != nil {
		v.Min("connectorId", *e.ConnectorID, 1)
	}
	return v.Err()
}

// nested validates an optional sub-structure.
func nested(c *schema.Checker, field string, v interface{ Validate() error }, present bool) *schema.Checker {
	if !present {
		return c
	}
	return c.Nested(field, v.Validate())
}
