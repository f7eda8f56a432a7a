// Package priority computes the 0-100 work-queue priority of a claim from
// weighted base factors and contextual multipliers. Scoring is pure: the same
// input always produces the same score.
package priority

import (
	"math"
	"time"
)

// Fixed base-factor weights. They sum to 1.
const (
	weightAging      = 0.30
	weightAmount     = 0.25
	weightPayerScore = 0.20
	weightUrgency    = 0.15
	weightDenial     = 0.10
)

// agingCapDays is the aging value at which the aging factor saturates.
const agingCapDays = 90

// DefaultAmountCeilingCents is the amount at which the amount factor
// saturates when no ceiling is configured.
const DefaultAmountCeilingCents = 500000

// Multipliers scale the weighted sum. Each is clamped into its legal range
// before use; the zero value therefore behaves as 1.0 across the board.
type Multipliers struct {
	Client   float64 `json:"client"`   // [1.0, 2.0]
	Workflow float64 `json:"workflow"` // [1.0, 1.5]
	SOW      float64 `json:"sow"`      // [1.0, 1.3]
}

// Input carries everything the scorer reads.
type Input struct {
	AgingDays     int
	AmountCents   int64
	PayerScore    int
	StatusUrgency int
	DenialFlag    bool
	Multipliers   Multipliers
}

// Scorer holds the configurable amount ceiling.
type Scorer struct {
	amountCeilingCents int64
}

func NewScorer(amountCeilingCents int64) *Scorer {
	if amountCeilingCents <= 0 {
		amountCeilingCents = DefaultAmountCeilingCents
	}
	return &Scorer{amountCeilingCents: amountCeilingCents}
}

// Score returns the claim's priority in [0,100]. Each factor is normalized
// to [0,100], combined by the fixed weights, scaled by the clamped
// multipliers, and clamped back into range.
func (s *Scorer) Score(in Input) int {
	aging := cappedLinear(float64(in.AgingDays), agingCapDays)
	amount := cappedLinear(float64(in.AmountCents), float64(s.amountCeilingCents))
	payer := clamp(float64(in.PayerScore), 0, 100)
	urgency := clamp(float64(in.StatusUrgency), 0, 100)
	denial := 0.0
	if in.DenialFlag {
		denial = 100.0
	}

	base := aging*weightAging +
		amount*weightAmount +
		payer*weightPayerScore +
		urgency*weightUrgency +
		denial*weightDenial

	m := in.Multipliers
	scaled := base *
		clamp(m.Client, 1.0, 2.0) *
		clamp(m.Workflow, 1.0, 1.5) *
		clamp(m.SOW, 1.0, 1.3)

	return int(math.Round(clamp(scaled, 0, 100)))
}

// Less orders a work queue: higher score first, and for equal scores the
// earlier deadline wins.
func Less(scoreA int, deadlineA time.Time, scoreB int, deadlineB time.Time) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	return deadlineA.Before(deadlineB)
}

// cappedLinear maps v onto [0,100] linearly, saturating at cap.
func cappedLinear(v, cap float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= cap {
		return 100
	}
	return v / cap * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
