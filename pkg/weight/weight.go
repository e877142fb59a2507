// Package weight derives effective edge weights from a base weight and the
// situational factors observed on a road segment.
package weight

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// TimeOfDay is the time band an edge weight was observed in
type TimeOfDay int

const (
	Day TimeOfDay = iota
	Night
	// Unknown is any unrecognised time band. It weighs like Night.
	Unknown
)

const (
	dayFactor   = 1.0
	nightFactor = 1.5

	// congestionStep is the surcharge added per congestion level
	congestionStep = 0.1
)

// ErrNegativeCongestion is returned by Validate for congestion levels below zero
var ErrNegativeCongestion = errors.New("congestion level must be non-negative")

// ErrInvalidWeight is returned by ValidateWeight for NaN and infinite weights
var ErrInvalidWeight = errors.New("weight must be a finite number")

// String returns the lower-case name used in config files and the HTTP API
func (t TimeOfDay) String() string {
	switch t {
	case Day:
		return "day"
	case Night:
		return "night"
	default:
		return "unknown"
	}
}

// ParseTimeOfDay maps "day" and "night" (any case, surrounding space ignored)
// to their constants. An empty string is Day. Anything else is Unknown.
func ParseTimeOfDay(s string) TimeOfDay {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day":
		return Day
	case "night":
		return Night
	default:
		return Unknown
	}
}

// Factor returns the multiplier for the time band.
//
// Only Day is charged at the base rate. Night and every unrecognised value
// fail open to the higher night multiplier.
func (t TimeOfDay) Factor() float64 {
	if t == Day {
		return dayFactor
	}
	return nightFactor
}

// CongestionFactor returns 1 + 0.1 * level. It is not capped.
func CongestionFactor(level int) float64 {
	return 1 + float64(level)*congestionStep
}

// EffectiveWeight returns base * timeFactor * congestionFactor.
// It has no error conditions; a negative base yields a negative weight.
func EffectiveWeight(base float64, tod TimeOfDay, congestion int) float64 {
	return base * tod.Factor() * CongestionFactor(congestion)
}

// Validate rejects congestion levels the weight model is not defined for.
// Boundary callers (file loaders, HTTP handlers) use it before building edges.
func Validate(congestion int) error {
	if congestion < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeCongestion, congestion)
	}
	return nil
}

// ValidateWeight rejects weights that are NaN or infinite. Such values would
// poison every distance computed through the edge.
func ValidateWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidWeight, w)
	}
	return nil
}
