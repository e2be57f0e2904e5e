package engine

// FirstTouchResult indicates which exit level a bar reached first.
type FirstTouchResult int

const (
	TouchNone FirstTouchResult = iota
	TouchTakeProfit
	TouchStopLoss
)

// ResolveFirstTouch determines whether a long position's stop-loss or
// take-profit was hit first within a bar. When both levels sit inside the
// bar's range the synthetic path assumes price walks from the open to the
// nearer extremum first. Exactly one result is ever returned per bar, so a
// position can never record both exits on the same bar. Levels set to zero
// are treated as absent.
func ResolveFirstTouch(bar Bar, takeProfit, stopLoss float64) FirstTouchResult {
	hitTP := takeProfit > 0 && bar.High >= takeProfit
	hitSL := stopLoss > 0 && bar.Low <= stopLoss
	if hitTP && hitSL {
		distHigh := bar.High - bar.Open
		distLow := bar.Open - bar.Low
		if distLow < distHigh {
			return TouchStopLoss
		}
		return TouchTakeProfit
	}
	if hitSL {
		return TouchStopLoss
	}
	if hitTP {
		return TouchTakeProfit
	}
	return TouchNone
}
