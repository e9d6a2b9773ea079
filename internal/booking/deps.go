package booking

import (
	"go.uber.org/zap"
	"time"
)

const DefaultConfirmationHours = 2

type Settings struct {
	Currency             string
	CommissionPercentage float64
	ConfirmationHours    int
	// HoldSlot inserts a pending reservation at authorization time.
	HoldSlot       bool
	SweepBatchSize int
}

func (s Settings) withDefaults() Settings {
	if s.Currency == "" {
		s.Currency = "eur"
	}
	if s.CommissionPercentage <= 0 {
		s.CommissionPercentage = DefaultCommissionPercentage
	}
	if s.ConfirmationHours <= 0 {
		s.ConfirmationHours = DefaultConfirmationHours
	}
	if s.SweepBatchSize <= 0 {
		s.SweepBatchSize = 100
	}
	return s
}

// Deps bundles the collaborators shared by the booking components.
type Deps struct {
	Store     Store
	Payments  PaymentProvider
	Directory Directory
	Calendar  BlockCalendar
	Events    Dispatcher
	Log       *zap.Logger
	Now       func() time.Time
	Settings  Settings
}

func (d Deps) normalized() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	d.Settings = d.Settings.withDefaults()
	return d
}
