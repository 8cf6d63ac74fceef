package device

import "math"

const (
	minVoltage = 0.45
	maxVoltage = 4.05
	minPercent = 10
	maxPercent = 100
)

// VoltageToPercentage maps a battery voltage onto a charge percentage,
// linearly between 0.45V (10%) and 4.05V (100%), clamped outside that range.
func VoltageToPercentage(voltage float64) int {
	if math.IsNaN(voltage) || voltage <= minVoltage {
		return minPercent
	}
	if voltage > maxVoltage {
		return maxPercent
	}

	ratio := (voltage - minVoltage) / (maxVoltage - minVoltage)
	return int(math.Round(minPercent + ratio*(maxPercent-minPercent)))
}
