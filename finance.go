package gridcalc

import (
	"math"
)

// Financial functions. Cash flow conventions follow the usual sign rules:
// outflows negative, inflows positive, payments returned as outflows.

const (
	irrInitialRate   = 0.1
	irrMaxIterations = 100
	irrTolerance     = 1e-5
	irrMinDerivative = 1e-12
)

// npvAt discounts cashflows at the given rate. The first cashflow sits one
// period out, so flow i is divided by (1+rate)^(i+1).
func npvAt(rate float64, flows []float64) float64 {
	total := 0.0
	for i, flow := range flows {
		total += flow / math.Pow(1+rate, float64(i+1))
	}
	return total
}

func npvDerivative(rate float64, flows []float64) float64 {
	total := 0.0
	for i, flow := range flows {
		period := float64(i + 1)
		total -= period * flow / math.Pow(1+rate, period+1)
	}
	return total
}

func (f *funcLibrary) NPV(args ...Scalar) (Scalar, error) {
	if len(args) < 2 {
		return nil, arityError("NPV", "expects a rate and cashflows")
	}
	rate, cellErr := numberArg("NPV", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	flows, err := collectNumbers(args[1:])
	if err != nil {
		return nil, err
	}
	if rate <= -1 {
		return nil, arityError("NPV", "rate must be greater than -1")
	}
	out := npvAt(rate, flows)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "NPV: non-finite result")
	}
	return out, nil
}

// IRR finds the rate at which the cashflows' NPV is zero via
// Newton-Raphson. If the iteration exhausts its budget without the step
// shrinking below tolerance, the last iterate is returned; a vanishing
// derivative is an error since the next step would be unbounded.
func (f *funcLibrary) IRR(args ...Scalar) (Scalar, error) {
	if len(args) == 0 {
		return nil, arityError("IRR", "expects cashflows")
	}
	flows, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(flows) < 2 {
		return nil, arityError("IRR", "expects at least two cashflows")
	}
	hasPositive, hasNegative := false, false
	for _, flow := range flows {
		if flow > 0 {
			hasPositive = true
		}
		if flow < 0 {
			hasNegative = true
		}
	}
	if !hasPositive || !hasNegative {
		return nil, arityError("IRR", "cashflows must include an inflow and an outflow")
	}

	rate := irrInitialRate
	for i := 0; i < irrMaxIterations; i++ {
		derivative := npvDerivative(rate, flows)
		if math.Abs(derivative) < irrMinDerivative {
			return nil, newCellError(ErrorCodeGeneric, "IRR: derivative vanished, no convergence")
		}
		next := rate - npvAt(rate, flows)/derivative
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= -1 {
			return nil, newCellError(ErrorCodeGeneric, "IRR: iteration diverged")
		}
		if math.Abs(next-rate) < irrTolerance {
			return next, nil
		}
		rate = next
	}
	return rate, nil
}

func (f *funcLibrary) PMT(args ...Scalar) (Scalar, error) {
	if len(args) != 3 {
		return nil, arityError("PMT", "expects rate, nper, and pv")
	}
	rate, cellErr := numberArg("PMT", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	nper, cellErr := numberArg("PMT", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	pv, cellErr := numberArg("PMT", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	if nper == 0 {
		return nil, arityError("PMT", "nper must be non-zero")
	}
	if rate == 0 {
		return -pv / nper, nil
	}
	growth := math.Pow(1+rate, nper)
	out := -pv * rate * growth / (growth - 1)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "PMT: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) FV(args ...Scalar) (Scalar, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, arityError("FV", "expects rate, nper, pmt, and optional pv")
	}
	rate, cellErr := numberArg("FV", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	nper, cellErr := numberArg("FV", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	pmt, cellErr := numberArg("FV", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	pv := 0.0
	if len(args) == 4 {
		pv, cellErr = numberArg("FV", args, 3)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	if rate == 0 {
		return -(pv + pmt*nper), nil
	}
	growth := math.Pow(1+rate, nper)
	out := -(pv*growth + pmt*(growth-1)/rate)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "FV: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) PV(args ...Scalar) (Scalar, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, arityError("PV", "expects rate, nper, pmt, and optional fv")
	}
	rate, cellErr := numberArg("PV", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	nper, cellErr := numberArg("PV", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	pmt, cellErr := numberArg("PV", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	fv := 0.0
	if len(args) == 4 {
		fv, cellErr = numberArg("PV", args, 3)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	if rate == 0 {
		return -(fv + pmt*nper), nil
	}
	growth := math.Pow(1+rate, nper)
	out := -(fv + pmt*(growth-1)/rate) / growth
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "PV: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) NPER(args ...Scalar) (Scalar, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, arityError("NPER", "expects rate, pmt, pv, and optional fv")
	}
	rate, cellErr := numberArg("NPER", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	pmt, cellErr := numberArg("NPER", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	pv, cellErr := numberArg("NPER", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	fv := 0.0
	if len(args) == 4 {
		fv, cellErr = numberArg("NPER", args, 3)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	if rate == 0 {
		if pmt == 0 {
			return nil, arityError("NPER", "pmt must be non-zero at zero rate")
		}
		return -(pv + fv) / pmt, nil
	}
	numerator := pmt - fv*rate
	denominator := pmt + pv*rate
	if numerator <= 0 || denominator <= 0 {
		return nil, newCellError(ErrorCodeGeneric, "NPER: no solution for these terms")
	}
	out := math.Log(numerator/denominator) / math.Log(1+rate)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "NPER: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) CAGR(args ...Scalar) (Scalar, error) {
	if len(args) != 3 {
		return nil, arityError("CAGR", "expects begin value, end value, and years")
	}
	begin, cellErr := numberArg("CAGR", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	end, cellErr := numberArg("CAGR", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	years, cellErr := numberArg("CAGR", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	if begin <= 0 || end < 0 || years <= 0 {
		return nil, arityError("CAGR", "values must be positive and years non-zero")
	}
	out := math.Pow(end/begin, 1/years) - 1
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "CAGR: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) MOIC(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("MOIC", "expects exit value and invested capital")
	}
	exit, cellErr := numberArg("MOIC", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	invested, cellErr := numberArg("MOIC", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	if invested == 0 {
		return nil, newCellError(ErrorCodeGeneric, "MOIC: invested capital is zero")
	}
	return exit / invested, nil
}
