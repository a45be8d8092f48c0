package ocpp201

import "github.com/danmuck/ocppctl/internal/protocol/schema"

const (
	ActionAuthorize               = "Authorize"
	ActionRequestStartTransaction = "RequestStartTransaction"
	ActionRequestStopTransaction  = "RequestStopTransaction"
	ActionTriggerMessage          = "TriggerMessage"
	ActionUnlockConnector         = "UnlockConnector"
)

type AuthorizeRequest struct {
	IdToken     IdToken `json:"idToken"`
	Certificate string  `json:"certificate,omitempty"`
}

func NewAuthorizeRequest(token string, kind IdTokenEnum) *AuthorizeRequest {
	return &AuthorizeRequest{IdToken: IdToken{IdToken: token, Type: kind}}
}

func (*AuthorizeRequest) Action() string { return ActionAuthorize }

func (r *AuthorizeRequest) Validate() error {
	return schema.For(ActionAuthorize).
		Nested("idToken", r.IdToken.Validate()).
		MaxLen("certificate", r.Certificate, 5500).
		Err()
}

type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo"`
}

func (c *AuthorizeResponse) Validate() error {
	return schema.For(ActionAuthorize).Nested("idTokenInfo", c.IdTokenInfo.Validate()).Err()
}

// RequestStartStopStatus answers both remote transaction requests.
type RequestStartStopStatus string

const (
	RequestAccepted RequestStartStopStatus = "Accepted"
	RequestRejected RequestStartStopStatus = "Rejected"
)

type RequestStartTransactionRequest struct {
	EvseID        *int     `json:"evseId,omitempty"`
	RemoteStartID *int     `json:"remoteStartId"`
	IdToken       IdToken  `json:"idToken"`
	GroupIdToken  *IdToken `json:"groupIdToken,omitempty"`
}

func (*RequestStartTransactionRequest) Action() string { return ActionRequestStartTransaction }

func (r *RequestStartTransactionRequest) Validate() error {
	v := schema.For(ActionRequestStartTransaction).
		RequiredInt("remoteStartId", r.RemoteStartID).
		Nested("idToken", r.IdToken.Validate())
	if r.EvseID != nil {
		v.Min("evseId", *r.EvseID, 1)
	}
	return nested(v, "groupIdToken", r.GroupIdToken, r.GroupIdToken != nil).Err()
}

type RequestStartTransactionResponse struct {
	Status        RequestStartStopStatus `json:"status"`
	TransactionID string                 `json:"transactionId,omitempty"`
	StatusInfo    *StatusInfo            `json:"statusInfo,omitempty"`
}

func (c *RequestStartTransactionResponse) Validate() error {
	v := schema.For(ActionRequestStartTransaction).
		OneOf("status", string(c.Status), string(RequestAccepted), string(RequestRejected)).
		MaxLen("transactionId", c.TransactionID, maxIdentifier)
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}

type RequestStopTransactionRequest struct {
	TransactionID string `json:"transactionId"`
}

func (*RequestStopTransactionRequest) Action() string { return ActionRequestStopTransaction }

func (r *RequestStopTransactionRequest) Validate() error {
	return schema.For(ActionRequestStopTransaction).Required("transactionId", r.TransactionID, maxIdentifier).Err()
}

type RequestStopTransactionResponse struct {
	Status     RequestStartStopStatus `json:"status"`
	StatusInfo *StatusInfo            `json:"statusInfo,omitempty"`
}

func (c *RequestStopTransactionResponse) Validate() error {
	v := schema.For(ActionRequestStopTransaction).
		OneOf("status", string(c.Status), string(RequestAccepted), string(RequestRejected))
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}

type MessageTrigger string

const (
	TriggerBootNotification                  MessageTrigger = "BootNotification"
	TriggerLogStatusNotification             MessageTrigger = "LogStatusNotification"
	TriggerFirmwareStatusNotification        MessageTrigger = "FirmwareStatusNotification"
	TriggerHeartbeat                         MessageTrigger = "Heartbeat"
	TriggerMeterValues                       MessageTrigger = "MeterValues"
	TriggerSignChargingStationCertificate    MessageTrigger = "SignChargingStationCertificate"
	TriggerSignV2GCertificate                MessageTrigger = "SignV2GCertificate"
	TriggerStatusNotification                MessageTrigger = "StatusNotification"
	TriggerTransactionEvent                  MessageTrigger = "TransactionEvent"
	TriggerSignCombinedCertificate           MessageTrigger = "SignCombinedCertificate"
	TriggerPublishFirmwareStatusNotification MessageTrigger = "PublishFirmwareStatusNotification"
)

var messageTriggers = []string{
	string(TriggerBootNotification),
	string(TriggerLogStatusNotification),
	string(TriggerFirmwareStatusNotification),
	string(TriggerHeartbeat),
	string(TriggerMeterValues),
	string(TriggerSignChargingStationCertificate),
	string(TriggerSignV2GCertificate),
	string(TriggerStatusNotification),
	string(TriggerTransactionEvent),
	string(TriggerSignCombinedCertificate),
	string(TriggerPublishFirmwareStatusNotification),
}

type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage"`
	EVSE             *EVSE          `json:"evse,omitempty"`
}

func NewTriggerMessageRequest(message MessageTrigger) *TriggerMessageRequest {
	return &TriggerMessageRequest{RequestedMessage: message}
}

func (*TriggerMessageRequest) Action() string { return ActionTriggerMessage }

func (r *TriggerMessageRequest) Validate() error {
	v := schema.For(ActionTriggerMessage).OneOf("requestedMessage", string(r.RequestedMessage), messageTriggers...)
	return nested(v, "evse", r.EVSE, r.EVSE != nil).Err()
}

type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

type TriggerMessageResponse struct {
	Status     TriggerMessageStatus `json:"status"`
	StatusInfo *StatusInfo          `json:"statusInfo,omitempty"`
}

func (c *TriggerMessageResponse) Validate() error {
	v := schema.For(ActionTriggerMessage).
		OneOf("status", string(c.Status), string(TriggerAccepted), string(TriggerRejected), string(TriggerNotImplemented))
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}

type UnlockConnectorRequest struct {
	EvseID      int `json:"evseId"`
	ConnectorID int `json:"connectorId"`
}

func NewUnlockConnectorRequest(evseID, connectorID int) *UnlockConnectorRequest {
	return &UnlockConnectorRequest{EvseID: evseID, ConnectorID: connectorID}
}

func (*UnlockConnectorRequest) Action() string { return ActionUnlockConnector }

func (r *UnlockConnectorRequest) Validate() error {
	return schema.For(ActionUnlockConnector).
		Min("evseId", r.EvseID, 1).
		Min("connectorId", r.ConnectorID, 1).
		Err()
}

type UnlockStatus string

const (
	UnlockUnlocked                     UnlockStatus = "Unlocked"
	UnlockFailed                       UnlockStatus = "UnlockFailed"
	UnlockOngoingAuthorizedTransaction UnlockStatus = "OngoingAuthorizedTransaction"
	UnlockUnknownConnector             UnlockStatus = "UnknownConnector"
)

type UnlockConnectorResponse struct {
	Status     UnlockStatus `json:"status"`
	StatusInfo *StatusInfo  `json:"statusInfo,omitempty"`
}

func (c *UnlockConnectorResponse) Validate() error {
	v := schema.For(ActionUnlockConnector).OneOf("status", string(c.Status),
		string(UnlockUnlocked),
		string(UnlockFailed),
		string(UnlockOngoingAuthorizedTransaction),
		string(UnlockUnknownConnector),
	)
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}
