package centralsystem

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/ocpp201"
	"github.com/danmuck/ocppctl/internal/protocol"
)

// Backend answers the charge point initiated calls every central system
// needs: registration, heartbeats, authorization and transactions.
type Backend struct {
	interval time.Duration
	clock    clock.Clock
	allowed  map[string]struct{}
	nextTx   atomic.Int64
}

// NewBackend accepts every id tag when idTags is empty.
func NewBackend(interval time.Duration, idTags []string, clk clock.Clock) *Backend {
	if clk == nil {
		clk = clock.WallClock
	}
	var allowed map[string]struct{}
	if len(idTags) > 0 {
		allowed = make(map[string]struct{}, len(idTags))
		for _, tag := range idTags {
			allowed[tag] = struct{}{}
		}
	}
	return &Backend{interval: interval, clock: clk, allowed: allowed}
}

func (b *Backend) authorized(tag string) bool {
	if b.allowed == nil {
		return tag != ""
	}
	_, ok := b.allowed[tag]
	return ok
}

func (b *Backend) intervalSeconds() int {
	return int(b.interval / time.Second)
}

// Profiles binds the backend handlers for both protocol generations.
func (b *Backend) Profiles() Profiles {
	core := ocpp16.CoreProfile().MustBind(map[string]feature.Handler{
		ocpp16.ActionBootNotification: feature.Handle(b.boot16),
		ocpp16.ActionHeartbeat: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.HeartbeatRequest) (*ocpp16.HeartbeatConfirmation, error) {
			return &ocpp16.HeartbeatConfirmation{CurrentTime: b.clock.Now().UTC()}, nil
		}),
		ocpp16.ActionAuthorize: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.AuthorizeRequest) (*ocpp16.AuthorizeConfirmation, error) {
			return &ocpp16.AuthorizeConfirmation{IdTagInfo: b.tagInfo(req.IdTag)}, nil
		}),
		ocpp16.ActionStatusNotification: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.StatusNotificationRequest) (*ocpp16.StatusNotificationConfirmation, error) {
			log.Debug().
				Str("session", id.String()).
				Int("connector", req.ConnectorID).
				Str("status", string(req.Status)).
				Str("error_code", string(req.ErrorCode)).
				Msg("centralsystem.Backend status notification")
			return &ocpp16.StatusNotificationConfirmation{}, nil
		}),
		ocpp16.ActionStartTransaction: feature.Handle(b.startTransaction),
		ocpp16.ActionStopTransaction: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.StopTransactionRequest) (*ocpp16.StopTransactionConfirmation, error) {
			conf := &ocpp16.StopTransactionConfirmation{}
			if req.IdTag != "" {
				conf.IdTagInfo = b.tagInfo(req.IdTag)
			}
			return conf, nil
		}),
	})
	security := ocpp16.SecurityExtProfile().MustBind(map[string]feature.Handler{
		ocpp16.ActionSignCertificate: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.SignCertificateRequest) (*ocpp16.SignCertificateConfirmation, error) {
			// Signing is out of scope; the request is acknowledged only.
			return &ocpp16.SignCertificateConfirmation{Status: ocpp16.RemoteAccepted}, nil
		}),
	})

	provisioning := ocpp201.ProvisioningFunction().MustBind(map[string]feature.Handler{
		ocpp201.ActionBootNotification: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.BootNotificationRequest) (*ocpp201.BootNotificationResponse, error) {
			log.Info().
				Str("session", id.String()).
				Str("vendor", req.ChargingStation.VendorName).
				Str("model", req.ChargingStation.Model).
				Str("reason", string(req.Reason)).
				Msg("centralsystem.Backend boot notification")
			return &ocpp201.BootNotificationResponse{
				CurrentTime: b.clock.Now().UTC(),
				Interval:    b.intervalSeconds(),
				Status:      ocpp201.RegistrationAccepted,
			}, nil
		}),
		ocpp201.ActionHeartbeat: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.HeartbeatRequest) (*ocpp201.HeartbeatResponse, error) {
			return &ocpp201.HeartbeatResponse{CurrentTime: b.clock.Now().UTC()}, nil
		}),
	})
	authorization := ocpp201.AuthorizationFunction().MustBind(map[string]feature.Handler{
		ocpp201.ActionAuthorize: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.AuthorizeRequest) (*ocpp201.AuthorizeResponse, error) {
			status := ocpp201.AuthorizationInvalid
			if req.IdToken.Type == ocpp201.IdTokenNoAuthorization || b.authorized(req.IdToken.IdToken) {
				status = ocpp201.AuthorizationAccepted
			}
			return &ocpp201.AuthorizeResponse{IdTokenInfo: ocpp201.IdTokenInfo{Status: status}}, nil
		}),
	})

	return Profiles{
		protocol.Version16:  {core, security},
		protocol.Version201: {provisioning, authorization, ocpp201.RemoteControlFunction()},
	}
}

func (b *Backend) boot16(ctx context.Context, id uuid.UUID, req *ocpp16.BootNotificationRequest) (*ocpp16.BootNotificationConfirmation, error) {
	log.Info().
		Str("session", id.String()).
		Str("vendor", req.ChargePointVendor).
		Str("model", req.ChargePointModel).
		Msg("centralsystem.Backend boot notification")
	return &ocpp16.BootNotificationConfirmation{
		Status:      ocpp16.RegistrationAccepted,
		CurrentTime: b.clock.Now().UTC(),
		Interval:    b.intervalSeconds(),
	}, nil
}

func (b *Backend) startTransaction(ctx context.Context, id uuid.UUID, req *ocpp16.StartTransactionRequest) (*ocpp16.StartTransactionConfirmation, error) {
	info := b.tagInfo(req.IdTag)
	// A refused start still answers with a transaction id; 0 is never issued.
	txID := 0
	if info.Status == ocpp16.AuthorizationAccepted {
		txID = int(b.nextTx.Add(1))
	}
	return &ocpp16.StartTransactionConfirmation{IdTagInfo: info, TransactionID: &txID}, nil
}

func (b *Backend) tagInfo(tag string) *ocpp16.IdTagInfo {
	if b.authorized(tag) {
		return &ocpp16.IdTagInfo{Status: ocpp16.AuthorizationAccepted}
	}
	return &ocpp16.IdTagInfo{Status: ocpp16.AuthorizationInvalid}
}
