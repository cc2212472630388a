// Package format converts raw upstream numbers into display strings.
// All functions are pure.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unit is the unit an upstream duration metric is reported in.
type Unit string

const (
	Seconds      Unit = "seconds"
	Milliseconds Unit = "milliseconds"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// Valued is implemented by optional numeric payload fields.
type Valued interface {
	Value() (float64, bool)
}

// Duration formats an average duration into a short human string.
//
// value may be any numeric type, a numeric string, json.Number, a Valued or
// nil. Values that cannot be read as a number yield zero in the input unit
// ("0s" or "0ms").
func Duration(value any, unit Unit) string {
	v, ok := toFloat(value)
	if !ok {
		if unit == Seconds {
			return "0s"
		}
		return "0ms"
	}

	ms := v
	if unit == Seconds {
		ms = v * msPerSecond
	}

	switch {
	case ms < msPerSecond:
		return fmt.Sprintf("%.0fms", ms)
	case ms < msPerMinute:
		return fmt.Sprintf("%.1fs", ms/msPerSecond)
	case ms < msPerHour:
		return fmt.Sprintf("%.1fm", ms/msPerMinute)
	case ms < msPerDay:
		return fmt.Sprintf("%.1f %s", ms/msPerHour, pluralExact(ms, msPerHour, "hour"))
	default:
		return fmt.Sprintf("%.1f %s", ms/msPerDay, pluralExact(ms, msPerDay, "day"))
	}
}

func pluralExact(ms, unit float64, noun string) string {
	if ms == unit {
		return noun
	}
	return noun + "s"
}

func toFloat(value any) (float64, bool) {
	var v float64
	switch x := value.(type) {
	case nil:
		return 0, false
	case Valued:
		f, ok := x.Value()
		if !ok {
			return 0, false
		}
		v = f
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case int32:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Percent returns numerator/denominator as a percentage with two decimals,
// or "0%" when the denominator is not positive.
func Percent(numerator, denominator int64) string {
	if denominator <= 0 {
		return "0%"
	}
	p := math.Round(float64(numerator)/float64(denominator)*10000) / 100
	return fmt.Sprintf("%.2f%%", p)
}

// Count formats n with thousands separators.
func Count(n int64) string {
	return humanize.Comma(n)
}

// Megabytes formats a byte count as mebibytes with two decimals.
func Megabytes(bytes float64) string {
	return fmt.Sprintf("%.2f MB", bytes/1024/1024)
}

// Plural returns noun, with an "s" appended unless n is exactly 1.
func Plural(n int64, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
