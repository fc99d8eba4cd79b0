// Package config loads simulation settings from YAML files and the
// environment.
package config

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// ParseSize parses sizes such as "16kB", "512MB", "4k" or "4096". Units are
// binary, so "16kB" is 16384 bytes.
func ParseSize(s string) (uint64, error) {
	str := strings.TrimSpace(s)

	unitStart := strings.IndexFunc(str, unicode.IsLetter)
	if unitStart > 0 {
		unit := strings.ToLower(strings.TrimSpace(str[unitStart:]))
		if unit != "b" && !strings.Contains(unit, "i") {
			str = str[:unitStart] + strings.TrimSuffix(unit, "b") + "iB"
		}
	}

	size, err := humanize.ParseBytes(str)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return size, nil
}

// FormatSize prints a size with binary units, e.g. "16 KiB".
func FormatSize(size uint64) string {
	return humanize.IBytes(size)
}
