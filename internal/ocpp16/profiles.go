package ocpp16

import "github.com/danmuck/ocppctl/internal/feature"

// CoreProfile returns the 1.6 Core profile without handlers. Bind handlers
// on the side that serves each action.
func CoreProfile() feature.Profile {
	return feature.Profile{
		Name: "Core",
		Features: []feature.Feature{
			{
				Action:          ActionAuthorize,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &AuthorizeRequest{} },
				NewConfirmation: func() feature.Confirmation { return &AuthorizeConfirmation{} },
			},
			{
				Action:          ActionBootNotification,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &BootNotificationRequest{} },
				NewConfirmation: func() feature.Confirmation { return &BootNotificationConfirmation{} },
			},
			{
				Action:          ActionHeartbeat,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &HeartbeatRequest{} },
				NewConfirmation: func() feature.Confirmation { return &HeartbeatConfirmation{} },
			},
			{
				Action:          ActionStatusNotification,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &StatusNotificationRequest{} },
				NewConfirmation: func() feature.Confirmation { return &StatusNotificationConfirmation{} },
			},
			{
				Action:          ActionStartTransaction,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &StartTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &StartTransactionConfirmation{} },
			},
			{
				Action:          ActionStopTransaction,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &StopTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &StopTransactionConfirmation{} },
			},
			{
				Action:          ActionChangeConfiguration,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &ChangeConfigurationRequest{} },
				NewConfirmation: func() feature.Confirmation { return &ChangeConfigurationConfirmation{} },
			},
			{
				Action:          ActionReset,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &ResetRequest{} },
				NewConfirmation: func() feature.Confirmation { return &ResetConfirmation{} },
			},
			{
				Action:          ActionRemoteStartTransaction,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &RemoteStartTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &RemoteStartTransactionConfirmation{} },
			},
			{
				Action:          ActionRemoteStopTransaction,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &RemoteStopTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &RemoteStopTransactionConfirmation{} },
			},
		},
	}
}

// SecurityExtProfile returns the certificate signing subset of the 1.6
// security whitepaper.
func SecurityExtProfile() feature.Profile {
	return feature.Profile{
		Name: "SecurityExt",
		Features: []feature.Feature{
			{
				Action:          ActionSignCertificate,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &SignCertificateRequest{} },
				NewConfirmation: func() feature.Confirmation { return &SignCertificateConfirmation{} },
			},
		},
	}
}

// Profiles returns every 1.6 profile this module implements.
func Profiles() []feature.Profile {
	return []feature.Profile{CoreProfile(), SecurityExtProfile()}
}
