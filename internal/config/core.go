package config

import (
	"fmt"
	"math"
)

// PeakAnnotation labels a ppm range for display.
type PeakAnnotation struct {
	Label string  `json:"label"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Core is the annotation block shared by the whole application: sample
// classes, labelled peaks and per-class colours. None of it affects
// computation.
type Core struct {
	SampleClasses map[string]string `json:"sample_classes"`
	Peaks         []PeakAnnotation  `json:"peaks"`
	ClassColors   map[string]string `json:"class_colors"`
}

// EmptyCore returns a Core with initialised maps.
func EmptyCore() Core {
	return Core{
		SampleClasses: map[string]string{},
		Peaks:         []PeakAnnotation{},
		ClassColors:   map[string]string{},
	}
}

// Clone returns a deep copy.
func (c Core) Clone() Core {
	out := EmptyCore()
	for k, v := range c.SampleClasses {
		out.SampleClasses[k] = v
	}
	out.Peaks = append(out.Peaks, c.Peaks...)
	for k, v := range c.ClassColors {
		out.ClassColors[k] = v
	}
	return out
}

// Validate checks peak annotations have finite bounds and a label.
func (c Core) Validate() error {
	for i, p := range c.Peaks {
		if p.Label == "" {
			return fmt.Errorf("peak annotation %d has no label", i)
		}
		if math.IsNaN(p.Start) || math.IsNaN(p.End) || math.IsInf(p.Start, 0) || math.IsInf(p.End, 0) {
			return fmt.Errorf("peak annotation %q has non-finite bounds", p.Label)
		}
	}
	return nil
}
