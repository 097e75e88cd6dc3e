// Package strategy holds the pure decision functions of a trading cycle:
// mispricing detection, fractional-Kelly sizing and the pre-trade execution gate.
// Nothing here performs I/O; every input arrives as an explicit snapshot.
package strategy

// epsilon absorbs float noise when comparing against configured thresholds.
const epsilon = 1e-9

const (
	// MinEntryPrice and MaxEntryPrice bound tradable prices; outside this band
	// the payout odds are degenerate.
	MinEntryPrice = 0.01
	MaxEntryPrice = 0.99
)
