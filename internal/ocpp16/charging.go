package ocpp16

import (
	"time"

	"github.com/danmuck/ocppctl/internal/protocol/schema"
)

type ChargingProfilePurpose string

const (
	PurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

type ChargingProfileKind string

const (
	KindAbsolute  ChargingProfileKind = "Absolute"
	KindRecurring ChargingProfileKind = "Recurring"
	KindRelative  ChargingProfileKind = "Relative"
)

type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

type ChargingRateUnit string

const (
	RateUnitWatts   ChargingRateUnit = "W"
	RateUnitAmperes ChargingRateUnit = "A"
)

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod" xml:"startPeriod"`
	Limit        float64 `json:"limit" xml:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty" xml:"numberPhases,omitempty"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty" xml:"duration,omitempty"`
	StartSchedule          *time.Time               `json:"startSchedule,omitempty" xml:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" xml:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" xml:"chargingSchedulePeriod"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" xml:"minChargingRate,omitempty"`
}

func (s *ChargingSchedule) Validate() error {
	c := schema.For("ChargingSchedule").
		OneOf("chargingRateUnit", string(s.ChargingRateUnit), string(RateUnitWatts), string(RateUnitAmperes)).
		Check("chargingSchedulePeriod", len(s.ChargingSchedulePeriod) > 0, "at least one period required")
	if s.Duration != nil {
		c.Min("duration", *s.Duration, 0)
	}
	for _, p := range s.ChargingSchedulePeriod {
		c.Min("chargingSchedulePeriod.startPeriod", p.StartPeriod, 0)
		if p.NumberPhases != nil {
			c.Check("chargingSchedulePeriod.numberPhases", *p.NumberPhases >= 1 && *p.NumberPhases <= 3, "must be 1, 2 or 3")
		}
	}
	return c.Err()
}

// ChargingProfile is a charging limit schedule. A transaction id may only be
// given for a TxProfile.
type ChargingProfile struct {
	ChargingProfileID      *int                   `json:"chargingProfileId" xml:"chargingProfileId"`
	TransactionID          *int                   `json:"transactionId,omitempty" xml:"transactionId,omitempty"`
	StackLevel             *int                   `json:"stackLevel" xml:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" xml:"chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind" xml:"chargingProfileKind"`
	RecurrencyKind         RecurrencyKind         `json:"recurrencyKind,omitempty" xml:"recurrencyKind,omitempty"`
	ValidFrom              *time.Time             `json:"validFrom,omitempty" xml:"validFrom,omitempty"`
	ValidTo                *time.Time             `json:"validTo,omitempty" xml:"validTo,omitempty"`
	ChargingSchedule       *ChargingSchedule      `json:"chargingSchedule" xml:"chargingSchedule"`
}

func (p *ChargingProfile) Validate() error {
	c := schema.For("ChargingProfile").
		RequiredInt("chargingProfileId", p.ChargingProfileID).
		RequiredMin("stackLevel", p.StackLevel, 0).
		OneOf("chargingProfilePurpose", string(p.ChargingProfilePurpose),
			string(PurposeChargePointMaxProfile),
			string(PurposeTxDefaultProfile),
			string(PurposeTxProfile),
		).
		Check("transactionId", p.TransactionID == nil || p.ChargingProfilePurpose == PurposeTxProfile, "only allowed for TxProfile").
		OneOf("chargingProfileKind", string(p.ChargingProfileKind), string(KindAbsolute), string(KindRecurring), string(KindRelative)).
		OptionalOneOf("recurrencyKind", string(p.RecurrencyKind), string(RecurrencyDaily), string(RecurrencyWeekly)).
		Present("chargingSchedule", p.ChargingSchedule != nil)
	if p.ChargingSchedule != nil {
		c.Nested("chargingSchedule", p.ChargingSchedule.Validate())
	}
	return c.Err()
}
