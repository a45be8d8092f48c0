package ocpp16

import (
	"time"

	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

const (
	maxIDTag       = 20
	maxString20    = 20
	maxString25    = 25
	maxString50    = 50
	maxString255   = 255
	maxConfigValue = 500
)

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// IdTagInfo is the authorization verdict for an idTag.
type IdTagInfo struct {
	ExpiryDate  *time.Time          `json:"expiryDate,omitempty" xml:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty" xml:"parentIdTag,omitempty"`
	Status      AuthorizationStatus `json:"status" xml:"status"`
}

func (i *IdTagInfo) Validate() error {
	return schema.For("IdTagInfo").
		MaxLen("parentIdTag", i.ParentIdTag, maxIDTag).
		OneOf("status", string(i.Status),
			string(AuthorizationAccepted),
			string(AuthorizationBlocked),
			string(AuthorizationExpired),
			string(AuthorizationInvalid),
			string(AuthorizationConcurrentTx),
		).
		Err()
}

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

var chargePointStatuses = []string{
	string(StatusAvailable),
	string(StatusPreparing),
	string(StatusCharging),
	string(StatusSuspendedEVSE),
	string(StatusSuspendedEV),
	string(StatusFinishing),
	string(StatusReserved),
	string(StatusUnavailable),
	string(StatusFaulted),
}

type ChargePointErrorCode string

const (
	ErrorCodeConnectorLock   ChargePointErrorCode = "ConnectorLockFailure"
	ErrorCodeEVCommunication ChargePointErrorCode = "EVCommunicationError"
	ErrorCodeGroundFailure   ChargePointErrorCode = "GroundFailure"
	ErrorCodeHighTemperature ChargePointErrorCode = "HighTemperature"
	ErrorCodeInternal        ChargePointErrorCode = "InternalError"
	ErrorCodeLocalList       ChargePointErrorCode = "LocalListConflict"
	ErrorCodeNoError         ChargePointErrorCode = "NoError"
	ErrorCodeOther           ChargePointErrorCode = "OtherError"
	ErrorCodeOverCurrent     ChargePointErrorCode = "OverCurrentFailure"
	ErrorCodeOverVoltage     ChargePointErrorCode = "OverVoltage"
	ErrorCodePowerMeter      ChargePointErrorCode = "PowerMeterFailure"
	ErrorCodePowerSwitch     ChargePointErrorCode = "PowerSwitchFailure"
	ErrorCodeReader          ChargePointErrorCode = "ReaderFailure"
	ErrorCodeResetFailure    ChargePointErrorCode = "ResetFailure"
	ErrorCodeUnderVoltage    ChargePointErrorCode = "UnderVoltage"
	ErrorCodeWeakSignal      ChargePointErrorCode = "WeakSignal"
)

var chargePointErrorCodes = []string{
	string(ErrorCodeConnectorLock),
	string(ErrorCodeEVCommunication),
	string(ErrorCodeGroundFailure),
	string(ErrorCodeHighTemperature),
	string(ErrorCodeInternal),
	string(ErrorCodeLocalList),
	string(ErrorCodeNoError),
	string(ErrorCodeOther),
	string(ErrorCodeOverCurrent),
	string(ErrorCodeOverVoltage),
	string(ErrorCodePowerMeter),
	string(ErrorCodePowerSwitch),
	string(ErrorCodeReader),
	string(ErrorCodeResetFailure),
	string(ErrorCodeUnderVoltage),
	string(ErrorCodeWeakSignal),
}

type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

// RemoteStatus answers the remote control and reset requests.
type RemoteStatus string

const (
	RemoteAccepted RemoteStatus = "Accepted"
	RemoteRejected RemoteStatus = "Rejected"
)

type StopReason string

const (
	StopReasonEmergencyStop  StopReason = "EmergencyStop"
	StopReasonEVDisconnected StopReason = "EVDisconnected"
	StopReasonHardReset      StopReason = "HardReset"
	StopReasonLocal          StopReason = "Local"
	StopReasonOther          StopReason = "Other"
	StopReasonPowerLoss      StopReason = "PowerLoss"
	StopReasonReboot         StopReason = "Reboot"
	StopReasonRemote         StopReason = "Remote"
	StopReasonSoftReset      StopReason = "SoftReset"
	StopReasonUnlockCommand  StopReason = "UnlockCommand"
	StopReasonDeAuthorized   StopReason = "DeAuthorized"
)

var stopReasons = []string{
	string(StopReasonEmergencyStop),
	string(StopReasonEVDisconnected),
	string(StopReasonHardReset),
	string(StopReasonLocal),
	string(StopReasonOther),
	string(StopReasonPowerLoss),
	string(StopReasonReboot),
	string(StopReasonRemote),
	string(StopReasonSoftReset),
	string(StopReasonUnlockCommand),
	string(StopReasonDeAuthorized),
}
