package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// GasSample is one archived poll cycle.
type GasSample struct {
	ObservedAt  time.Time
	Safe        decimal.Decimal
	Propose     decimal.Decimal
	Fast        decimal.Decimal
	Status      string
	Reason      string
	EthPriceUSD decimal.NullDecimal
	BlockNumber *int64
	BaseFeeGwei decimal.NullDecimal
	CreatedAt   time.Time
}

// AlertRecord captures an emitted threshold alert for auditing.
type AlertRecord struct {
	ID            string
	TriggeredAt   time.Time
	ProposeGwei   decimal.Decimal
	ThresholdGwei decimal.Decimal
	Level         string
	Channels      []string
	CreatedAt     time.Time
}
