package ocpp201

import (
	"time"

	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

const (
	ActionBootNotification = "BootNotification"
	ActionHeartbeat        = "Heartbeat"
	ActionGetReport        = "GetReport"
)

type BootReason string

const (
	BootReasonApplicationReset BootReason = "ApplicationReset"
	BootReasonFirmwareUpdate   BootReason = "FirmwareUpdate"
	BootReasonLocalReset       BootReason = "LocalReset"
	BootReasonPowerUp          BootReason = "PowerUp"
	BootReasonRemoteReset      BootReason = "RemoteReset"
	BootReasonScheduledReset   BootReason = "ScheduledReset"
	BootReasonTriggered        BootReason = "Triggered"
	BootReasonUnknown          BootReason = "Unknown"
	BootReasonWatchdog         BootReason = "Watchdog"
)

var bootReasons = []string{
	string(BootReasonApplicationReset),
	string(BootReasonFirmwareUpdate),
	string(BootReasonLocalReset),
	string(BootReasonPowerUp),
	string(BootReasonRemoteReset),
	string(BootReasonScheduledReset),
	string(BootReasonTriggered),
	string(BootReasonUnknown),
	string(BootReasonWatchdog),
}

type ChargingStation struct {
	SerialNumber    string `json:"serialNumber,omitempty"`
	Model           string `json:"model"`
	VendorName      string `json:"vendorName"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

func (s *ChargingStation) Validate() error {
	return schema.For("ChargingStation").
		MaxLen("serialNumber", s.SerialNumber, maxString25).
		Required("model", s.Model, maxString20).
		Required("vendorName", s.VendorName, maxString50).
		MaxLen("firmwareVersion", s.FirmwareVersion, maxString50).
		Err()
}

type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation"`
	Reason          BootReason      `json:"reason"`
}

func NewBootNotificationRequest(vendor, model string, reason BootReason) *BootNotificationRequest {
	return &BootNotificationRequest{
		ChargingStation: ChargingStation{VendorName: vendor, Model: model},
		Reason:          reason,
	}
}

func (*BootNotificationRequest) Action() string { return ActionBootNotification }

func (r *BootNotificationRequest) Validate() error {
	return schema.For(ActionBootNotification).
		Nested("chargingStation", r.ChargingStation.Validate()).
		OneOf("reason", string(r.Reason), bootReasons...).
		Err()
}

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type BootNotificationResponse struct {
	CurrentTime time.Time          `json:"currentTime"`
	Interval    int                `json:"interval"`
	Status      RegistrationStatus `json:"status"`
	StatusInfo  *StatusInfo        `json:"statusInfo,omitempty"`
}

func (c *BootNotificationResponse) Validate() error {
	v := schema.For(ActionBootNotification).
		Time("currentTime", c.CurrentTime).
		Min("interval", c.Interval, 0).
		OneOf("status", string(c.Status), string(RegistrationAccepted), string(RegistrationPending), string(RegistrationRejected))
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}

type HeartbeatRequest struct{}

func (*HeartbeatRequest) Action() string { return ActionHeartbeat }

func (*HeartbeatRequest) Validate() error { return nil }

type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

func (c *HeartbeatResponse) Validate() error {
	return schema.For(ActionHeartbeat).Time("currentTime", c.CurrentTime).Err()
}

type ComponentCriterion string

const (
	CriterionActive    ComponentCriterion = "Active"
	CriterionAvailable ComponentCriterion = "Available"
	CriterionEnabled   ComponentCriterion = "Enabled"
	CriterionProblem   ComponentCriterion = "Problem"
)

type Component struct {
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
	EVSE     *EVSE  `json:"evse,omitempty"`
}

type Variable struct {
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
}

type ComponentVariable struct {
	Component Component `json:"component"`
	Variable  *Variable `json:"variable,omitempty"`
}

func (cv *ComponentVariable) Validate() error {
	v := schema.For("ComponentVariable").
		Required("component.name", cv.Component.Name, maxString50).
		MaxLen("component.instance", cv.Component.Instance, maxString50)
	nested(v, "component.evse", cv.Component.EVSE, cv.Component.EVSE != nil)
	if cv.Variable != nil {
		v.Required("variable.name", cv.Variable.Name, maxString50).
			MaxLen("variable.instance", cv.Variable.Instance, maxString50)
	}
	return v.Err()
}

type GetReportRequest struct {
	RequestID         *int                 `json:"requestId"`
	ComponentCriteria []ComponentCriterion `json:"componentCriteria,omitempty"`
	ComponentVariable []ComponentVariable  `json:"componentVariable,omitempty"`
}

func NewGetReportRequest(requestID int) *GetReportRequest {
	return &GetReportRequest{RequestID: &requestID}
}

func (*GetReportRequest) Action() string { return ActionGetReport }

func (r *GetReportRequest) Validate() error {
	v := schema.For(ActionGetReport).
		RequiredInt("requestId", r.RequestID).
		Check("componentCriteria", len(r.ComponentCriteria) <= 4, "at most 4 criteria")
	for _, c := range r.ComponentCriteria {
		v.OneOf("componentCriteria", string(c),
			string(CriterionActive),
			string(CriterionAvailable),
			string(CriterionEnabled),
			string(CriterionProblem),
		)
	}
	for i := range r.ComponentVariable {
		v.Nested("componentVariable", r.ComponentVariable[i].Validate())
	}
	return v.Err()
}

type GenericDeviceModelStatus string

const (
	DeviceModelAccepted       GenericDeviceModelStatus = "Accepted"
	DeviceModelRejected       GenericDeviceModelStatus = "Rejected"
	DeviceModelNotSupported   GenericDeviceModelStatus = "NotSupported"
	DeviceModelEmptyResultSet GenericDeviceModelStatus = "EmptyResultSet"
)

type GetReportResponse struct {
	Status     GenericDeviceModelStatus `json:"status"`
	StatusInfo *StatusInfo              `json:"statusInfo,omitempty"`
}

func (c *GetReportResponse) Validate() error {
	v := schema.For(ActionGetReport).OneOf("status", string(c.Status),
		string(DeviceModelAccepted),
		string(DeviceModelRejected),
		string(DeviceModelNotSupported),
		string(DeviceModelEmptyResultSet),
	)
	return nested(v, "statusInfo", c.StatusInfo, c.StatusInfo != nil).Err()
}
