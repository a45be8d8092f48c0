package ocpp16

import (
	"encoding/xml"
	"time"

	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

// Core profile action names.
const (
	ActionAuthorize              = "Authorize"
	ActionBootNotification       = "BootNotification"
	ActionHeartbeat              = "Heartbeat"
	ActionStatusNotification     = "StatusNotification"
	ActionStartTransaction       = "StartTransaction"
	ActionStopTransaction        = "StopTransaction"
	ActionChangeConfiguration    = "ChangeConfiguration"
	ActionReset                  = "Reset"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
)

type AuthorizeRequest struct {
	XMLName xml.Name `json:"-" xml:"authorizeRequest"`
	IdTag   string   `json:"idTag" xml:"idTag"`
}

func NewAuthorizeRequest(idTag string) *AuthorizeRequest {
	return &AuthorizeRequest{IdTag: idTag}
}

func (*AuthorizeRequest) Action() string { return ActionAuthorize }

func (r *AuthorizeRequest) Validate() error {
	return schema.For(ActionAuthorize).Required("idTag", r.IdTag, maxIDTag).Err()
}

type AuthorizeConfirmation struct {
	XMLName   xml.Name   `json:"-" xml:"authorizeResponse"`
	IdTagInfo *IdTagInfo `json:"idTagInfo" xml:"idTagInfo"`
}

func (c *AuthorizeConfirmation) Validate() error {
	v := schema.For(ActionAuthorize).Present("idTagInfo", c.IdTagInfo != nil)
	if c.IdTagInfo != nil {
		v.Nested("idTagInfo", c.IdTagInfo.Validate())
	}
	return v.Err()
}

type BootNotificationRequest struct {
	XMLName                 xml.Name `json:"-" xml:"bootNotificationRequest"`
	ChargePointVendor       string   `json:"chargePointVendor" xml:"chargePointVendor"`
	ChargePointModel        string   `json:"chargePointModel" xml:"chargePointModel"`
	ChargePointSerialNumber string   `json:"chargePointSerialNumber,omitempty" xml:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string   `json:"chargeBoxSerialNumber,omitempty" xml:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string   `json:"firmwareVersion,omitempty" xml:"firmwareVersion,omitempty"`
	Iccid                   string   `json:"iccid,omitempty" xml:"iccid,omitempty"`
	Imsi                    string   `json:"imsi,omitempty" xml:"imsi,omitempty"`
	MeterType               string   `json:"meterType,omitempty" xml:"meterType,omitempty"`
	MeterSerialNumber       string   `json:"meterSerialNumber,omitempty" xml:"meterSerialNumber,omitempty"`
}

func NewBootNotificationRequest(vendor, model string) *BootNotificationRequest {
	return &BootNotificationRequest{ChargePointVendor: vendor, ChargePointModel: model}
}

func (*BootNotificationRequest) Action() string { return ActionBootNotification }

func (r *BootNotificationRequest) Validate() error {
	return schema.For(ActionBootNotification).
		Required("chargePointVendor", r.ChargePointVendor, maxString20).
		Required("chargePointModel", r.ChargePointModel, maxString20).
		MaxLen("chargePointSerialNumber", r.ChargePointSerialNumber, maxString25).
		MaxLen("chargeBoxSerialNumber", r.ChargeBoxSerialNumber, maxString25).
		MaxLen("firmwareVersion", r.FirmwareVersion, maxString50).
		MaxLen("iccid", r.Iccid, maxString20).
		MaxLen("imsi", r.Imsi, maxString20).
		MaxLen("meterType", r.MeterType, maxString25).
		MaxLen("meterSerialNumber", r.MeterSerialNumber, maxString25).
		Err()
}

type BootNotificationConfirmation struct {
	XMLName     xml.Name           `json:"-" xml:"bootNotificationResponse"`
	Status      RegistrationStatus `json:"status" xml:"status"`
	CurrentTime time.Time          `json:"currentTime" xml:"currentTime"`
	Interval    int                `json:"interval" xml:"interval"`
}

func (c *BootNotificationConfirmation) Validate() error {
	return schema.For(ActionBootNotification).
		OneOf("status", string(c.Status), string(RegistrationAccepted), string(RegistrationPending), string(RegistrationRejected)).
		Time("currentTime", c.CurrentTime).
		Min("interval", c.Interval, 0).
		Err()
}

type HeartbeatRequest struct {
	XMLName xml.Name `json:"-" xml:"heartbeatRequest"`
}

func (*HeartbeatRequest) Action() string { return ActionHeartbeat }

func (*HeartbeatRequest) Validate() error { return nil }

type HeartbeatConfirmation struct {
	XMLName     xml.Name  `json:"-" xml:"heartbeatResponse"`
	CurrentTime time.Time `json:"currentTime" xml:"currentTime"`
}

func (c *HeartbeatConfirmation) Validate() error {
	return schema.For(ActionHeartbeat).Time("currentTime", c.CurrentTime).Err()
}

type StatusNotificationRequest struct {
	XMLName         xml.Name             `json:"-" xml:"statusNotificationRequest"`
	ConnectorID     int                  `json:"connectorId" xml:"connectorId"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" xml:"errorCode"`
	Info            string               `json:"info,omitempty" xml:"info,omitempty"`
	Status          ChargePointStatus    `json:"status" xml:"status"`
	Timestamp       *time.Time           `json:"timestamp,omitempty" xml:"timestamp,omitempty"`
	VendorID        string               `json:"vendorId,omitempty" xml:"vendorId,omitempty"`
	VendorErrorCode string               `json:"vendorErrorCode,omitempty" xml:"vendorErrorCode,omitempty"`
}

func (*StatusNotificationRequest) Action() string { return ActionStatusNotification }

func (r *StatusNotificationRequest) Validate() error {
	return schema.For(ActionStatusNotification).
		Min("connectorId", r.ConnectorID, 0).
		OneOf("errorCode", string(r.ErrorCode), chargePointErrorCodes...).
		MaxLen("info", r.Info, maxString50).
		OneOf("status", string(r.Status), chargePointStatuses...).
		MaxLen("vendorId", r.VendorID, maxString255).
		MaxLen("vendorErrorCode", r.VendorErrorCode, maxString50).
		Err()
}

type StatusNotificationConfirmation struct {
	XMLName xml.Name `json:"-" xml:"statusNotificationResponse"`
}

func (*StatusNotificationConfirmation) Validate() error { return nil }

type StartTransactionRequest struct {
	XMLName       xml.Name  `json:"-" xml:"startTransactionRequest"`
	ConnectorID   int       `json:"connectorId" xml:"connectorId"`
	IdTag         string    `json:"idTag" xml:"idTag"`
	MeterStart    *int      `json:"meterStart" xml:"meterStart"`
	ReservationID *int      `json:"reservationId,omitempty" xml:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp" xml:"timestamp"`
}

func NewStartTransactionRequest(connectorID int, idTag string, meterStart int, at time.Time) *StartTransactionRequest {
	return &StartTransactionRequest{ConnectorID: connectorID, IdTag: idTag, MeterStart: &meterStart, Timestamp: at}
}

func (*StartTransactionRequest) Action() string { return ActionStartTransaction }

func (r *StartTransactionRequest) Validate() error {
	return schema.For(ActionStartTransaction).
		Min("connectorId", r.ConnectorID, 1).
		Required("idTag", r.IdTag, maxIDTag).
		RequiredInt("meterStart", r.MeterStart).
		Time("timestamp", r.Timestamp).
		Err()
}

type StartTransactionConfirmation struct {
	XMLName       xml.Name   `json:"-" xml:"startTransactionResponse"`
	IdTagInfo     *IdTagInfo `json:"idTagInfo" xml:"idTagInfo"`
	TransactionID *int       `json:"transactionId" xml:"transactionId"`
}

func (c *StartTransactionConfirmation) Validate() error {
	v := schema.For(ActionStartTransaction).
		Present("idTagInfo", c.IdTagInfo != nil).
		RequiredInt("transactionId", c.TransactionID)
	if c.IdTagInfo != nil {
		v.Nested("idTagInfo", c.IdTagInfo.Validate())
	}
	return v.Err()
}

type StopTransactionRequest struct {
	XMLName       xml.Name   `json:"-" xml:"stopTransactionRequest"`
	IdTag         string     `json:"idTag,omitempty" xml:"idTag,omitempty"`
	MeterStop     *int       `json:"meterStop" xml:"meterStop"`
	Timestamp     time.Time  `json:"timestamp" xml:"timestamp"`
	TransactionID *int       `json:"transactionId" xml:"transactionId"`
	Reason        StopReason `json:"reason,omitempty" xml:"reason,omitempty"`
}

func NewStopTransactionRequest(transactionID, meterStop int, at time.Time) *StopTransactionRequest {
	return &StopTransactionRequest{TransactionID: &transactionID, MeterStop: &meterStop, Timestamp: at}
}

func (*StopTransactionRequest) Action() string { return ActionStopTransaction }

func (r *StopTransactionRequest) Validate() error {
	return schema.For(ActionStopTransaction).
		RequiredInt("transactionId", r.TransactionID).
		RequiredInt("meterStop", r.MeterStop).
		MaxLen("idTag", r.IdTag, maxIDTag).
		Time("timestamp", r.Timestamp).
		OptionalOneOf("reason", string(r.Reason), stopReasons...).
		Err()
}

type StopTransactionConfirmation struct {
	XMLName   xml.Name   `json:"-" xml:"stopTransactionResponse"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty" xml:"idTagInfo,omitempty"`
}

func (c *StopTransactionConfirmation) Validate() error {
	if c.IdTagInfo == nil {
		return nil
	}
	return schema.For(ActionStopTransaction).Nested("idTagInfo", c.IdTagInfo.Validate()).Err()
}

type ChangeConfigurationRequest struct {
	XMLName xml.Name `json:"-" xml:"changeConfigurationRequest"`
	Key     string   `json:"key" xml:"key"`
	Value   string   `json:"value" xml:"value"`
}

func (*ChangeConfigurationRequest) Action() string { return ActionChangeConfiguration }

func (r *ChangeConfigurationRequest) Validate() error {
	return schema.For(ActionChangeConfiguration).
		Required("key", r.Key, maxString50).
		Required("value", r.Value, maxConfigValue).
		Err()
}

type ChangeConfigurationConfirmation struct {
	XMLName xml.Name            `json:"-" xml:"changeConfigurationResponse"`
	Status  ConfigurationStatus `json:"status" xml:"status"`
}

func (c *ChangeConfigurationConfirmation) Validate() error {
	return schema.For(ActionChangeConfiguration).
		OneOf("status", string(c.Status),
			string(ConfigurationAccepted),
			string(ConfigurationRejected),
			string(ConfigurationRebootRequired),
			string(ConfigurationNotSupported),
		).
		Err()
}

type ResetRequest struct {
	XMLName xml.Name  `json:"-" xml:"resetRequest"`
	Type    ResetType `json:"type" xml:"type"`
}

func NewResetRequest(t ResetType) *ResetRequest {
	return &ResetRequest{Type: t}
}

func (*ResetRequest) Action() string { return ActionReset }

func (r *ResetRequest) Validate() error {
	return schema.For(ActionReset).OneOf("type", string(r.Type), string(ResetHard), string(ResetSoft)).Err()
}

type ResetConfirmation struct {
	XMLName xml.Name     `json:"-" xml:"resetResponse"`
	Status  RemoteStatus `json:"status" xml:"status"`
}

func (c *ResetConfirmation) Validate() error {
	return validateRemoteStatus(ActionReset, c.Status)
}

type RemoteStartTransactionRequest struct {
	XMLName         xml.Name         `json:"-" xml:"remoteStartTransactionRequest"`
	ConnectorID     *int             `json:"connectorId,omitempty" xml:"connectorId,omitempty"`
	IdTag           string           `json:"idTag" xml:"idTag"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty" xml:"chargingProfile,omitempty"`
}

func (*RemoteStartTransactionRequest) Action() string { return ActionRemoteStartTransaction }

func (r *RemoteStartTransactionRequest) Validate() error {
	c := schema.For(ActionRemoteStartTransaction).Required("idTag", r.IdTag, maxIDTag)
	if r.ConnectorID != nil {
		c.Min("connectorId", *r.ConnectorID, 1)
	}
	if r.ChargingProfile != nil {
		c.Check("chargingProfile.chargingProfilePurpose", r.ChargingProfile.ChargingProfilePurpose == PurposeTxProfile, "must be TxProfile").
			Nested("chargingProfile", r.ChargingProfile.Validate())
	}
	return c.Err()
}

type RemoteStartTransactionConfirmation struct {
	XMLName xml.Name     `json:"-" xml:"remoteStartTransactionResponse"`
	Status  RemoteStatus `json:"status" xml:"status"`
}

func (c *RemoteStartTransactionConfirmation) Validate() error {
	return validateRemoteStatus(ActionRemoteStartTransaction, c.Status)
}

type RemoteStopTransactionRequest struct {
	XMLName       xml.Name `json:"-" xml:"remoteStopTransactionRequest"`
	TransactionID *int     `json:"transactionId" xml:"transactionId"`
}

func NewRemoteStopTransactionRequest(transactionID int) *RemoteStopTransactionRequest {
	return &RemoteStopTransactionRequest{TransactionID: &transactionID}
}

func (*RemoteStopTransactionRequest) Action() string { return ActionRemoteStopTransaction }

func (r *RemoteStopTransactionRequest) Validate() error {
	return schema.For(ActionRemoteStopTransaction).RequiredInt("transactionId", r.TransactionID).Err()
}

type RemoteStopTransactionConfirmation struct {
	XMLName xml.Name     `json:"-" xml:"remoteStopTransactionResponse"`
	Status  RemoteStatus `json:"status" xml:"status"`
}

func (c *RemoteStopTransactionConfirmation) Validate() error {
	return validateRemoteStatus(ActionRemoteStopTransaction, c.Status)
}

func validateRemoteStatus(action string, status RemoteStatus) error {
	return schema.For(action).OneOf("status", string(status), string(RemoteAccepted), string(RemoteRejected)).Err()
}
