package ocpp201

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/schema"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

func intPtr(v int) *int { return &v }

func TestValidRequestsAndResponses(t *testing.T) {
	testlog.Start(t)
	valid := []interface{ Validate() error }{
		NewBootNotificationRequest("Acme", "X2", BootReasonPowerUp),
		&BootNotificationResponse{CurrentTime: time.Now(), Interval: 300, Status: RegistrationAccepted},
		&HeartbeatRequest{},
		&HeartbeatResponse{CurrentTime: time.Now()},
		NewGetReportRequest(1),
		&GetReportRequest{RequestID: intPtr(2), ComponentCriteria: []ComponentCriterion{CriterionProblem}, ComponentVariable: []ComponentVariable{
			{Component: Component{Name: "EVSE", EVSE: &EVSE{ID: 1}}, Variable: &Variable{Name: "Available"}},
		}},
		&GetReportResponse{Status: DeviceModelEmptyResultSet},
		NewAuthorizeRequest("ABC123", IdTokenISO14443),
		&AuthorizeRequest{IdToken: IdToken{Type: IdTokenNoAuthorization}},
		&AuthorizeResponse{IdTokenInfo: IdTokenInfo{Status: AuthorizationAccepted}},
		&RequestStartTransactionRequest{EvseID: intPtr(1), RemoteStartID: intPtr(9), IdToken: IdToken{IdToken: "ABC123", Type: IdTokenCentral}},
		&RequestStartTransactionResponse{Status: RequestAccepted, TransactionID: "tx-1"},
		&RequestStopTransactionRequest{TransactionID: "tx-1"},
		&RequestStopTransactionResponse{Status: RequestRejected, StatusInfo: &StatusInfo{ReasonCode: "UnknownTx"}},
		NewTriggerMessageRequest(TriggerHeartbeat),
		&TriggerMessageResponse{Status: TriggerNotImplemented},
		NewUnlockConnectorRequest(1, 1),
		&UnlockConnectorResponse{Status: UnlockUnlocked},
	}
	for _, v := range valid {
		if err := v.Validate(); err != nil {
			t.Fatalf("%T: %v", v, err)
		}
	}
}

func TestInvalidPayloadsNameTheField(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		v     interface{ Validate() error }
		field string
	}{
		{NewBootNotificationRequest("", "X2", BootReasonPowerUp), "chargingStation.vendorName"},
		{NewBootNotificationRequest("Acme", "X2", "Sleepy"), "reason"},
		{&BootNotificationResponse{Interval: 300, Status: RegistrationAccepted}, "currentTime"},
		{&GetReportRequest{ComponentCriteria: []ComponentCriterion{CriterionActive}}, "requestId"},
		{&GetReportRequest{RequestID: intPtr(1), ComponentCriteria: []ComponentCriterion{"Broken"}}, "componentCriteria"},
		{NewAuthorizeRequest("", IdTokenISO14443), "idToken.idToken"},
		{NewAuthorizeRequest(strings.Repeat("A", 37), IdTokenISO14443), "idToken.idToken"},
		{&AuthorizeResponse{}, "idTokenInfo.status"},
		{&RequestStartTransactionRequest{IdToken: IdToken{IdToken: "A", Type: IdTokenLocal}}, "remoteStartId"},
		{&RequestStartTransactionRequest{EvseID: intPtr(0), RemoteStartID: intPtr(1), IdToken: IdToken{IdToken: "A", Type: IdTokenLocal}}, "evseId"},
		{&RequestStopTransactionRequest{}, "transactionId"},
		{&RequestStopTransactionResponse{Status: RequestAccepted, StatusInfo: &StatusInfo{}}, "statusInfo.reasonCode"},
		{NewTriggerMessageRequest("Everything"), "requestedMessage"},
		{NewUnlockConnectorRequest(0, 1), "evseId"},
		{&UnlockConnectorResponse{}, "status"},
	}
	for _, tc := range cases {
		var ve schema.ValidationError
		if err := tc.v.Validate(); !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("%T: expected failure on %s, got %v", tc.v, tc.field, err)
		}
	}
}

func TestFunctionsBuildBothDirections(t *testing.T) {
	testlog.Start(t)
	station, err := feature.NewSet(protocol.Version201, feature.OriginChargePoint, Functions()...)
	if err != nil {
		t.Fatalf("station set: %v", err)
	}
	want := []string{ActionGetReport, ActionRequestStartTransaction, ActionRequestStopTransaction, ActionTriggerMessage, ActionUnlockConnector}
	for _, action := range want {
		if _, ok := station.Inbound.Lookup(action); !ok {
			t.Fatalf("charging station must serve %s", action)
		}
	}
	if _, ok := station.Outbound.Lookup(ActionAuthorize); !ok {
		t.Fatalf("charging station must send Authorize")
	}
	for _, p := range Functions() {
		for _, f := range p.Features {
			if got := f.NewRequest().Action(); got != f.Action {
				t.Fatalf("feature %s builds request for %s", f.Action, got)
			}
		}
	}
}

func TestPayloadJSONShape(t *testing.T) {
	testlog.Start(t)
	body, err := json.Marshal(NewBootNotificationRequest("Acme", "X2", BootReasonPowerUp))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"chargingStation":{"model":"X2","vendorName":"Acme"},"reason":"PowerUp"}`
	if string(body) != want {
		t.Fatalf("unexpected payload %s", body)
	}
}
