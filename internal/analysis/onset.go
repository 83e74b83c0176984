// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
)

// OnsetDetector flags sudden rises in signal energy, such as kick drum hits.
type OnsetDetector struct {
	threshold      float64 // RMS level a block must exceed
	minEnergyRatio float64 // Minimum rise over the previous block
	cooldown       int     // Blocks to ignore after an onset
	lastEnergy     float64
	quiet          int
}

// NewOnsetDetector returns a detector that fires when a block's RMS exceeds
// threshold and has risen by at least minEnergyRatio, then stays silent for
// cooldown blocks.
func NewOnsetDetector(threshold, minEnergyRatio float64, cooldown int) *OnsetDetector {
	return &OnsetDetector{
		threshold:      threshold,
		minEnergyRatio: minEnergyRatio,
		cooldown:       cooldown,
	}
}

// Process consumes one block of normalized samples and reports an onset and
// the block's RMS.
func (d *OnsetDetector) Process(samples []float64) (bool, float64) {
	currentEnergy := RMS(samples)
	defer func() { d.lastEnergy = currentEnergy }()

	if d.quiet > 0 {
		d.quiet--
		return false, currentEnergy
	}

	if currentEnergy > d.threshold && (d.lastEnergy == 0 || currentEnergy/d.lastEnergy > d.minEnergyRatio) {
		d.quiet = d.cooldown
		return true, currentEnergy
	}
	return false, currentEnergy
}

// Reset forgets the previous block.
func (d *OnsetDetector) Reset() {
	d.lastEnergy = 0
	d.quiet = 0
}

// RMS returns the root mean square of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	var sumSquare float64
	for _, s := range samples {
		sumSquare += s * s
	}
	return math.Sqrt(sumSquare / float64(len(samples)))
}
