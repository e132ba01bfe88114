package funcs

import (
	"time"

	"github.com/robertoaraneda/gofhir/pkg/fhirpath/eval"
	"github.com/robertoaraneda/gofhir/pkg/fhirpath/types"
	"github.com/shopspring/decimal"
)

func init() {
	Register(FuncDef{
		Name:    "lowBoundary",
		MinArgs: 0,
		MaxArgs: 1,
		Fn:      fnLowBoundary,
	})

	Register(FuncDef{
		Name:    "highBoundary",
		MinArgs: 0,
		MaxArgs: 1,
		Fn:      fnHighBoundary,
	})

	Register(FuncDef{
		Name:    "precision",
		MinArgs: 0,
		MaxArgs: 0,
		Fn:      fnPrecision,
	})
}

// fnPrecision returns the "digits of precision" of the singleton input, per
// the table in the Boundary function group: date 4/6/8, datetime adds
// 10/12/14(+3 for milliseconds), time 2/4/6(+3 for milliseconds).
func fnPrecision(_ *eval.Context, input types.Collection, _ []interface{}) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	switch v := input[0].(type) {
	case types.Decimal:
		return types.Collection{types.NewInteger(int64(decimalDigits(v)))}, nil
	case types.Date:
		return types.Collection{types.NewInteger(int64(datePrecisionDigits(v.Precision())))}, nil
	case types.DateTime:
		return types.Collection{types.NewInteger(int64(dateTimePrecisionDigits(v.Precision())))}, nil
	case types.Time:
		return types.Collection{types.NewInteger(int64(timePrecisionDigits(v.Precision())))}, nil
	default:
		return types.Collection{}, nil
	}
}

func datePrecisionDigits(p types.DatePrecision) int {
	switch p {
	case types.YearPrecision:
		return 4
	case types.MonthPrecision:
		return 6
	default:
		return 8
	}
}

func dateTimePrecisionDigits(p types.DateTimePrecision) int {
	switch p {
	case types.DTYearPrecision:
		return 4
	case types.DTMonthPrecision:
		return 6
	case types.DTDayPrecision:
		return 8
	case types.DTHourPrecision:
		return 10
	case types.DTMinutePrecision:
		return 12
	case types.DTSecondPrecision:
		return 14
	default:
		return 17
	}
}

func timePrecisionDigits(p types.TimePrecision) int {
	switch p {
	case types.HourPrecision:
		return 2
	case types.MinutePrecision:
		return 4
	case types.SecondPrecision:
		return 6
	default:
		return 9
	}
}

// decimalDigits returns the number of digits after the decimal point as
// stored (shopspring/decimal's Exponent is the negated digit count).
func decimalDigits(d types.Decimal) int32 {
	exp := d.Value().Exponent()
	if exp < 0 {
		return -exp
	}
	return 0
}

// fnLowBoundary returns the smallest value consistent with the precision of
// the input. The optional precision argument applies to Decimal input only;
// Date, DateTime and Time boundaries are always expanded to full precision
// and the argument is ignored.
func fnLowBoundary(_ *eval.Context, input types.Collection, args []interface{}) (types.Collection, error) {
	return boundaryOf(input, args, false)
}

// fnHighBoundary returns the largest value consistent with the precision of
// the input. The optional precision argument applies to Decimal input only;
// Date, DateTime and Time boundaries are always expanded to full precision
// and the argument is ignored.
func fnHighBoundary(_ *eval.Context, input types.Collection, args []interface{}) (types.Collection, error) {
	return boundaryOf(input, args, true)
}

func boundaryOf(input types.Collection, args []interface{}, high bool) (types.Collection, error) {
	if input.Empty() {
		return types.Collection{}, nil
	}

	var requestedPrecision int
	havePrecision := false
	if len(args) > 0 {
		p, err := toInteger(args[0])
		if err != nil {
			return types.Collection{}, nil
		}
		requestedPrecision = int(p)
		havePrecision = true
	}

	switch v := input[0].(type) {
	case types.Decimal:
		return types.Collection{decimalBoundary(v, requestedPrecision, havePrecision, high)}, nil
	case types.Date:
		return types.Collection{dateBoundary(v, high)}, nil
	case types.DateTime:
		return types.Collection{dateTimeBoundary(v, high)}, nil
	case types.Time:
		return types.Collection{timeBoundary(v, high)}, nil
	default:
		return types.Collection{}, nil
	}
}

// decimalBoundary widens a decimal by half a unit in the last significant
// digit of its current precision, then rounds the result to the requested
// precision. Without an explicit precision the target is one digit past the
// input's, keeping the half-unit digit (1.587.lowBoundary() is 1.5865, not
// 1.587 rounded back onto itself).
func decimalBoundary(d types.Decimal, requested int, haveRequested bool, high bool) types.Decimal {
	precision := int(decimalDigits(d))
	target := precision + 1
	if haveRequested {
		target = requested
	}

	half := decimal.New(5, -int32(precision+1))
	var boundary decimal.Decimal
	if high {
		boundary = d.Value().Add(half)
	} else {
		boundary = d.Value().Sub(half)
	}

	rounded := boundary.Round(int32(target))
	result, err := types.NewDecimal(rounded.String())
	if err != nil {
		return types.NewDecimalFromFloat(0)
	}
	return result
}

// lastDayOfMonth returns the number of days in the given year/month.
func lastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateBoundary(d types.Date, high bool) types.Date {
	year, month, day := d.Year(), d.Month(), d.Day()

	switch d.Precision() {
	case types.YearPrecision:
		if high {
			month, day = 12, 31
		} else {
			month, day = 1, 1
		}
	case types.MonthPrecision:
		if high {
			day = lastDayOfMonth(year, month)
		} else {
			day = 1
		}
	}

	return types.NewDateWithPrecision(year, month, day, types.DayPrecision)
}

func dateTimeBoundary(dt types.DateTime, high bool) types.DateTime {
	year, month, day := dt.Year(), dt.Month(), dt.Day()
	hour, minute, second, millis := dt.Hour(), dt.Minute(), dt.Second(), dt.Millisecond()

	fillLow := func() { month, day, hour, minute, second, millis = 1, 1, 0, 0, 0, 0 }
	fillHigh := func() {
		month, day, hour, minute, second, millis = 12, 31, 23, 59, 59, 999
	}

	switch dt.Precision() {
	case types.DTYearPrecision:
		if high {
			fillHigh()
		} else {
			fillLow()
		}
	case types.DTMonthPrecision:
		if high {
			day, hour, minute, second, millis = lastDayOfMonth(year, month), 23, 59, 59, 999
		} else {
			day, hour, minute, second, millis = 1, 0, 0, 0, 0
		}
	case types.DTDayPrecision:
		if high {
			hour, minute, second, millis = 23, 59, 59, 999
		} else {
			hour, minute, second, millis = 0, 0, 0, 0
		}
	case types.DTHourPrecision:
		if high {
			minute, second, millis = 59, 59, 999
		} else {
			minute, second, millis = 0, 0, 0
		}
	case types.DTMinutePrecision:
		if high {
			second, millis = 59, 999
		} else {
			second, millis = 0, 0
		}
	case types.DTSecondPrecision:
		if high {
			millis = 999
		} else {
			millis = 0
		}
	}

	return types.NewDateTimeWithPrecision(year, month, day, hour, minute, second, millis,
		dt.HasTimezone(), dt.TZOffsetMinutes(), types.DTMillisPrecision)
}

func timeBoundary(t types.Time, high bool) types.Time {
	hour, minute, second, millis := t.Hour(), t.Minute(), t.Second(), t.Millisecond()

	switch t.Precision() {
	case types.HourPrecision:
		if high {
			minute, second, millis = 59, 59, 999
		} else {
			minute, second, millis = 0, 0, 0
		}
	case types.MinutePrecision:
		if high {
			second, millis = 59, 999
		} else {
			second, millis = 0, 0
		}
	case types.SecondPrecision:
		if high {
			millis = 999
		} else {
			millis = 0
		}
	}

	return types.NewTimeWithPrecision(hour, minute, second, millis, types.MillisPrecision)
}
