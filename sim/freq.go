package sim

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the time between two consecutive ticks, in seconds.
func (f Freq) Period() float64 {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}

	return float64(1.0 / f)
}

// Seconds converts a number of cycles into seconds.
func (f Freq) Seconds(c Cycle) float64 {
	return float64(c) * f.Period()
}

// String prints the frequency with the largest unit that keeps the value at
// or above 1, e.g. "2GHz".
func (f Freq) String() string {
	units := []struct {
		unit Freq
		name string
	}{
		{GHz, "GHz"},
		{MHz, "MHz"},
		{KHz, "KHz"},
	}

	for _, u := range units {
		if f >= u.unit {
			return strconv.FormatFloat(float64(f/u.unit), 'f', -1, 64) + u.name
		}
	}

	return strconv.FormatFloat(float64(f), 'f', -1, 64) + "Hz"
}

// ParseFreq parses strings such as "2GHz", "800MHz" or "1e9" into a Freq.
func ParseFreq(s string) (Freq, error) {
	str := strings.TrimSpace(s)
	lower := strings.ToLower(str)

	unit := Hz
	switch {
	case strings.HasSuffix(lower, "ghz"):
		unit = GHz
		str = str[:len(str)-3]
	case strings.HasSuffix(lower, "mhz"):
		unit = MHz
		str = str[:len(str)-3]
	case strings.HasSuffix(lower, "khz"):
		unit = KHz
		str = str[:len(str)-3]
	case strings.HasSuffix(lower, "hz"):
		str = str[:len(str)-2]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}

	if v <= 0 {
		return 0, fmt.Errorf("invalid frequency %q: must be positive", s)
	}

	return Freq(v) * unit, nil
}
