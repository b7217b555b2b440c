package colortable

import (
	"fmt"
	"math"
)

// Color is the average of a sampled cell, in BGR channel order.
type Color struct {
	B, G, R float64
}

// BlueRed is the blue minus red channel difference, the main outage signal.
func (c Color) BlueRed() float64 { return c.B - c.R }

// Brightness is the mean of the three channels.
func (c Color) Brightness() float64 { return (c.B + c.G + c.R) / 3 }

func (c Color) String() string {
	return fmt.Sprintf("bgr(%.0f,%.0f,%.0f)", c.B, c.G, c.R)
}

// Class is the classification of one hour cell.
type Class int

const (
	NoOutage Class = iota
	GuaranteedOutage
	PossibleOutage
)

func (c Class) String() string {
	switch c {
	case GuaranteedOutage:
		return "guaranteed"
	case PossibleOutage:
		return "possible"
	default:
		return "none"
	}
}

// Classifier turns the sampled colors of one row into cell classes. It sees
// the whole row so that row-relative strategies are possible.
type Classifier interface {
	Name() string
	Classify(row []Color) []Class
}

// NewClassifier returns the classifier registered under name.
func NewClassifier(name string) (Classifier, error) {
	switch name {
	case "", "fixed":
		return DefaultFixedThreshold(), nil
	case "adaptive":
		return DefaultRowAdaptive(), nil
	}
	return nil, fmt.Errorf("unknown color classifier %q", name)
}

// --------------------------------------------------------------------------
// Fixed threshold (default)
// --------------------------------------------------------------------------

// FixedThreshold classifies every cell against the same calibrated values:
// blue cells (B−R above BlueRedDelta) are guaranteed outages, grey cells
// (all channels below Ceiling) are possible outages, the rest is light.
type FixedThreshold struct {
	BlueRedDelta float64
	Ceiling      float64
}

func DefaultFixedThreshold() FixedThreshold {
	return FixedThreshold{BlueRedDelta: 38, Ceiling: 230}
}

func (FixedThreshold) Name() string { return "fixed" }

func (f FixedThreshold) Classify(row []Color) []Class {
	out := make([]Class, len(row))
	for i, c := range row {
		out[i] = f.classify(c)
	}
	return out
}

func (f FixedThreshold) classify(c Color) Class {
	if c.BlueRed() > f.BlueRedDelta {
		return GuaranteedOutage
	}
	if f.belowCeiling(c) {
		return PossibleOutage
	}
	return NoOutage
}

func (f FixedThreshold) belowCeiling(c Color) bool {
	return c.B < f.Ceiling && c.G < f.Ceiling && c.R < f.Ceiling
}

// --------------------------------------------------------------------------
// Row-adaptive threshold (alternate variant)
// --------------------------------------------------------------------------

// RowAdaptive derives a threshold from the row's own color spread, which
// tolerates faded prints and heavy compression. Rows without enough spread
// fall back to the fixed rule.
type RowAdaptive struct {
	Fallback FixedThreshold

	MinBlueRedRange    float64
	MinBlueRedStdDev   float64
	MinBrightnessRange float64
	ThresholdFloor     float64
}

func DefaultRowAdaptive() RowAdaptive {
	return RowAdaptive{
		Fallback:           DefaultFixedThreshold(),
		MinBlueRedRange:    15,
		MinBlueRedStdDev:   5,
		MinBrightnessRange: 20,
		ThresholdFloor:     10,
	}
}

func (RowAdaptive) Name() string { return "adaptive" }

func (a RowAdaptive) Classify(row []Color) []Class {
	if len(row) < 2 {
		return a.Fallback.Classify(row)
	}

	br := make([]float64, len(row))
	bright := make([]float64, len(row))
	for i, c := range row {
		br[i] = c.BlueRed()
		bright[i] = c.Brightness()
	}
	brMin, brMax := minMax(br)
	lo, hi := minMax(bright)

	out := make([]Class, len(row))
	switch {
	case brMax-brMin > a.MinBlueRedRange && stdDev(br) > a.MinBlueRedStdDev:
		threshold := math.Max(a.ThresholdFloor, (brMax+brMin)/2)
		for i, c := range row {
			switch {
			case br[i] > threshold:
				out[i] = GuaranteedOutage
			case a.Fallback.belowCeiling(c):
				out[i] = PossibleOutage
			}
		}
	case hi-lo > a.MinBrightnessRange:
		// Grey-scale row: darker than the midpoint means no power.
		threshold := (hi + lo) / 2
		for i := range row {
			if bright[i] < threshold {
				out[i] = GuaranteedOutage
			}
		}
	default:
		return a.Fallback.Classify(row)
	}
	return out
}

func minMax(vs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func stdDev(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	var sq float64
	for _, v := range vs {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vs)))
}
