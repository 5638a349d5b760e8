package gasdata

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Synthesizer generates plausible stand-ins for oracle data.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer seeds a generator. Seed 0 picks a time-based seed.
func NewSynthesizer(seed uint64) *Synthesizer {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// GasSample draws base in [15,55) Gwei, safe = max(1, base-[5,10)), fast = base+[5,15),
// rounded to whole Gwei with safe <= propose <= fast.
func (s *Synthesizer) GasSample() GasPriceSample {
	s.mu.Lock()
	base := 15 + s.rng.Float64()*40
	safe := max(1, base-5-s.rng.Float64()*5)
	fast := base + 5 + s.rng.Float64()*10
	s.mu.Unlock()

	return orderTiers(GasPriceSample{
		Safe:    decimal.NewFromFloat(safe).Round(0),
		Propose: decimal.NewFromFloat(base).Round(0),
		Fast:    decimal.NewFromFloat(fast).Round(0),
	})
}

// EthPrice draws a USD price in [2000, 2500), truncated to cents.
func (s *Synthesizer) EthPrice() decimal.Decimal {
	s.mu.Lock()
	price := 2000 + s.rng.Float64()*500
	s.mu.Unlock()
	return decimal.NewFromFloat(price).Truncate(2)
}

func orderTiers(sample GasPriceSample) GasPriceSample {
	if sample.Safe.GreaterThan(sample.Propose) {
		sample.Safe = sample.Propose
	}
	if sample.Fast.LessThan(sample.Propose) {
		sample.Fast = sample.Propose
	}
	return sample
}
