// Package fees resolves trading fee rates from account classification.
package fees

// Tier classifies an account for fee purposes.
type Tier string

const (
	// TierZeroFee covers internal and promotional accounts.
	TierZeroFee Tier = "zero_fee"
	// TierStandard is the default taker fee tier.
	TierStandard Tier = "standard"
)

// Standard taker rate applied to both legs of a round trip.
const standardRate = 0.0025

// Schedule maps account tiers to fee rates.
type Schedule struct {
	rates map[Tier]float64
}

// NewSchedule creates a schedule with the default tier rates.
func NewSchedule() *Schedule {
	return &Schedule{
		rates: map[Tier]float64{
			TierZeroFee:  0.0,
			TierStandard: standardRate,
		},
	}
}

// Rate returns the fee rate for a tier. Unknown tiers resolve to the
// standard rate rather than zero: charging is the safe default.
func (s *Schedule) Rate(tier Tier) float64 {
	if r, ok := s.rates[tier]; ok {
		return r
	}
	return standardRate
}
