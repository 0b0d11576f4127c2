package exchange

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// The curve maps cumulative utility tokens burned to voting power granted:
//
//	v = (2*sqrt(306.25 + 30*x) - 5) / 30 - 1
//
// with the exact integer inverse
//
//	x = (15*v^2 + 35*v) / 2
//
// All values carry 18 decimals. The square root runs over values scaled by
// PRECISION^2, decomposed through PRECISION_FIX so intermediates stay inside
// 256 bits.
var (
	// ErrValueOutOfRange indicates an input that does not fit 256 bits.
	ErrValueOutOfRange = errors.New("exchange: value exceeds 256 bits")
	// ErrCurveOverflow indicates an intermediate curve product exceeded 256 bits.
	ErrCurveOverflow = errors.New("exchange: curve arithmetic overflow")
	// ErrCurveUnderflow indicates a caller invariant violation: the claimed
	// prior state was larger than the posterior one.
	ErrCurveUnderflow = errors.New("exchange: curve arithmetic underflow")
)

var (
	precision       = uint256.NewInt(1e18)
	curveOffset     = uint256.MustFromDecimal("306250000000000000000") // 306.25, PRECISION scale
	rootScale       = uint256.NewInt(2e9)                              // 2 * PRECISION_FIX
	curveIntercept  = uint256.MustFromDecimal("5000000000000000000")   // 5, PRECISION scale
	curveSlope      = uint256.NewInt(30)
	inverseSquare   = uint256.NewInt(15)
	inverseLinear   = uint256.NewInt(35)
	two             = uint256.NewInt(2)
	minimumExchange = uint256.NewInt(1e18)
)

// Precision returns the fixed-point scale shared by all curve values.
func Precision() *big.Int { return precision.ToBig() }

// PrecisionFix returns the square-root scale compensation constant.
func PrecisionFix() *big.Int { return big.NewInt(1e9) }

// MinimumExchangeAmount returns the smallest utility amount the engine will
// exchange. Requests below it are rejected to avoid precision collapse.
func MinimumExchangeAmount() *big.Int { return minimumExchange.ToBig() }

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrValueOutOfRange
	}
	x, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrValueOutOfRange
	}
	return x, nil
}

// VotingPowerFromBurned maps a cumulative burned amount to the total voting
// power the curve grants for it. Monotone non-decreasing; burned amounts below
// ~1.17e9 wei truncate to zero, a documented precision floor.
func VotingPowerFromBurned(burned *big.Int) (*big.Int, error) {
	x, err := fromBig(burned)
	if err != nil {
		return nil, err
	}
	inner := new(uint256.Int)
	if _, overflow := inner.MulOverflow(x, curveSlope); overflow {
		return nil, ErrCurveOverflow
	}
	if _, overflow := inner.AddOverflow(inner, curveOffset); overflow {
		return nil, ErrCurveOverflow
	}
	root := new(uint256.Int).Sqrt(inner)
	scaled := new(uint256.Int)
	if _, overflow := scaled.MulOverflow(root, rootScale); overflow {
		return nil, ErrCurveOverflow
	}
	if scaled.Lt(curveIntercept) {
		return nil, ErrCurveUnderflow
	}
	scaled.Sub(scaled, curveIntercept)
	scaled.Div(scaled, curveSlope)
	if scaled.Lt(precision) {
		return nil, ErrCurveUnderflow
	}
	scaled.Sub(scaled, precision)
	return scaled.ToBig(), nil
}

// BurnedFromVotingPower is the exact integer inverse of the curve: the
// cumulative burned amount required to reach the supplied voting power.
func BurnedFromVotingPower(power *big.Int) (*big.Int, error) {
	x, err := fromBig(power)
	if err != nil {
		return nil, err
	}
	square := new(uint256.Int)
	if _, overflow := square.MulOverflow(x, x); overflow {
		return nil, ErrCurveOverflow
	}
	if _, overflow := square.MulOverflow(square, inverseSquare); overflow {
		return nil, ErrCurveOverflow
	}
	square.Div(square, precision)
	linear := new(uint256.Int)
	if _, overflow := linear.MulOverflow(x, inverseLinear); overflow {
		return nil, ErrCurveOverflow
	}
	sum := new(uint256.Int)
	if _, overflow := sum.AddOverflow(square, linear); overflow {
		return nil, ErrCurveOverflow
	}
	sum.Div(sum, two)
	return sum.ToBig(), nil
}

// IncrementalVotingPower returns the voting power granted for burning
// deltaBurned on top of currentBurned. The marginal grant shrinks as
// currentBurned grows.
func IncrementalVotingPower(deltaBurned, currentBurned *big.Int) (*big.Int, error) {
	if deltaBurned == nil || currentBurned == nil {
		return nil, ErrValueOutOfRange
	}
	before, err := VotingPowerFromBurned(currentBurned)
	if err != nil {
		return nil, err
	}
	after, err := VotingPowerFromBurned(new(big.Int).Add(currentBurned, deltaBurned))
	if err != nil {
		return nil, err
	}
	if after.Cmp(before) < 0 {
		return nil, ErrCurveUnderflow
	}
	return after.Sub(after, before), nil
}

// IncrementalBurnedAmount returns the exact burn cost of raising a holder
// from currentPower by deltaPower. Used when a cap forces a partial fill.
func IncrementalBurnedAmount(deltaPower, currentPower *big.Int) (*big.Int, error) {
	if deltaPower == nil || currentPower == nil {
		return nil, ErrValueOutOfRange
	}
	before, err := BurnedFromVotingPower(currentPower)
	if err != nil {
		return nil, err
	}
	after, err := BurnedFromVotingPower(new(big.Int).Add(currentPower, deltaPower))
	if err != nil {
		return nil, err
	}
	if after.Cmp(before) < 0 {
		return nil, ErrCurveUnderflow
	}
	return after.Sub(after, before), nil
}
