package chargepoint

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/ocpp201"
	"github.com/danmuck/ocppctl/internal/protocol"
)

// Station answers the central system initiated calls of a simulated charge
// point. It keeps the configuration keys it was told to change.
type Station struct {
	mu     sync.Mutex
	config map[string]string
	resets []ocpp16.ResetType
	// trigger runs requested messages on the client; nil ignores them.
	trigger func(action string)
}

func NewStation() *Station {
	return &Station{config: map[string]string{"HeartbeatInterval": "300"}}
}

// ConfigValue returns a configuration key set through ChangeConfiguration.
func (st *Station) ConfigValue(key string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.config[key]
	return v, ok
}

// Resets lists the reset types received so far.
func (st *Station) Resets() []ocpp16.ResetType {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]ocpp16.ResetType(nil), st.resets...)
}

// Profiles binds the station handlers for both protocol generations.
func (st *Station) Profiles() Profiles {
	core := ocpp16.CoreProfile().MustBind(map[string]feature.Handler{
		ocpp16.ActionReset: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.ResetRequest) (*ocpp16.ResetConfirmation, error) {
			st.mu.Lock()
			st.resets = append(st.resets, req.Type)
			st.mu.Unlock()
			log.Info().Str("session", id.String()).Str("type", string(req.Type)).Msg("chargepoint.Station reset requested")
			return &ocpp16.ResetConfirmation{Status: ocpp16.RemoteAccepted}, nil
		}),
		ocpp16.ActionChangeConfiguration: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.ChangeConfigurationRequest) (*ocpp16.ChangeConfigurationConfirmation, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			if _, known := st.config[req.Key]; !known {
				return &ocpp16.ChangeConfigurationConfirmation{Status: ocpp16.ConfigurationNotSupported}, nil
			}
			st.config[req.Key] = req.Value
			return &ocpp16.ChangeConfigurationConfirmation{Status: ocpp16.ConfigurationAccepted}, nil
		}),
		ocpp16.ActionRemoteStartTransaction: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.RemoteStartTransactionRequest) (*ocpp16.RemoteStartTransactionConfirmation, error) {
			return &ocpp16.RemoteStartTransactionConfirmation{Status: ocpp16.RemoteAccepted}, nil
		}),
		ocpp16.ActionRemoteStopTransaction: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.RemoteStopTransactionRequest) (*ocpp16.RemoteStopTransactionConfirmation, error) {
			return &ocpp16.RemoteStopTransactionConfirmation{Status: ocpp16.RemoteAccepted}, nil
		}),
	})

	provisioning := ocpp201.ProvisioningFunction().MustBind(map[string]feature.Handler{
		ocpp201.ActionGetReport: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.GetReportRequest) (*ocpp201.GetReportResponse, error) {
			return &ocpp201.GetReportResponse{Status: ocpp201.DeviceModelEmptyResultSet}, nil
		}),
	})
	remote := ocpp201.RemoteControlFunction().MustBind(map[string]feature.Handler{
		ocpp201.ActionRequestStartTransaction: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.RequestStartTransactionRequest) (*ocpp201.RequestStartTransactionResponse, error) {
			return &ocpp201.RequestStartTransactionResponse{Status: ocpp201.RequestAccepted}, nil
		}),
		ocpp201.ActionRequestStopTransaction: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.RequestStopTransactionRequest) (*ocpp201.RequestStopTransactionResponse, error) {
			return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestAccepted}, nil
		}),
		ocpp201.ActionTriggerMessage: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.TriggerMessageRequest) (*ocpp201.TriggerMessageResponse, error) {
			switch req.RequestedMessage {
			case ocpp201.TriggerHeartbeat, ocpp201.TriggerBootNotification:
			default:
				return &ocpp201.TriggerMessageResponse{Status: ocpp201.TriggerNotImplemented}, nil
			}
			st.mu.Lock()
			trigger := st.trigger
			st.mu.Unlock()
			if trigger == nil {
				return &ocpp201.TriggerMessageResponse{Status: ocpp201.TriggerRejected}, nil
			}
			// Sent on its own goroutine so the response is not held up.
			go trigger(string(req.RequestedMessage))
			return &ocpp201.TriggerMessageResponse{Status: ocpp201.TriggerAccepted}, nil
		}),
		ocpp201.ActionUnlockConnector: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.UnlockConnectorRequest) (*ocpp201.UnlockConnectorResponse, error) {
			return &ocpp201.UnlockConnectorResponse{Status: ocpp201.UnlockUnlocked}, nil
		}),
	})

	return Profiles{
		protocol.Version16:  {core, ocpp16.SecurityExtProfile()},
		protocol.Version201: {provisioning, ocpp201.AuthorizationFunction(), remote},
	}
}

func (st *Station) setTrigger(fn func(action string)) {
	st.mu.Lock()
	st.trigger = fn
	st.mu.Unlock()
}
