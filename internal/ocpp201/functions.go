package ocpp201

import "github.com/danmuck/ocppctl/internal/feature"

// ProvisioningFunction covers station registration, liveness and device
// model reporting.
func ProvisioningFunction() feature.Profile {
	return feature.Profile{
		Name: "Provisioning",
		Features: []feature.Feature{
			{
				Action:          ActionBootNotification,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &BootNotificationRequest{} },
				NewConfirmation: func() feature.Confirmation { return &BootNotificationResponse{} },
			},
			{
				Action:          ActionHeartbeat,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &HeartbeatRequest{} },
				NewConfirmation: func() feature.Confirmation { return &HeartbeatResponse{} },
			},
			{
				Action:          ActionGetReport,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &GetReportRequest{} },
				NewConfirmation: func() feature.Confirmation { return &GetReportResponse{} },
			},
		},
	}
}

func AuthorizationFunction() feature.Profile {
	return feature.Profile{
		Name: "Authorization",
		Features: []feature.Feature{
			{
				Action:          ActionAuthorize,
				Origin:          feature.OriginChargePoint,
				NewRequest:      func() feature.Request { return &AuthorizeRequest{} },
				NewConfirmation: func() feature.Confirmation { return &AuthorizeResponse{} },
			},
		},
	}
}

// RemoteControlFunction is served by the charging station.
func RemoteControlFunction() feature.Profile {
	return feature.Profile{
		Name: "RemoteControl",
		Features: []feature.Feature{
			{
				Action:          ActionRequestStartTransaction,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &RequestStartTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &RequestStartTransactionResponse{} },
			},
			{
				Action:          ActionRequestStopTransaction,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &RequestStopTransactionRequest{} },
				NewConfirmation: func() feature.Confirmation { return &RequestStopTransactionResponse{} },
			},
			{
				Action:          ActionTriggerMessage,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &TriggerMessageRequest{} },
				NewConfirmation: func() feature.Confirmation { return &TriggerMessageResponse{} },
			},
			{
				Action:          ActionUnlockConnector,
				Origin:          feature.OriginCentralSystem,
				NewRequest:      func() feature.Request { return &UnlockConnectorRequest{} },
				NewConfirmation: func() feature.Confirmation { return &UnlockConnectorResponse{} },
			},
		},
	}
}

// Functions returns every 2.0.1 functional block this module implements.
func Functions() []feature.Profile {
	return []feature.Profile{ProvisioningFunction(), AuthorizationFunction(), RemoteControlFunction()}
}
