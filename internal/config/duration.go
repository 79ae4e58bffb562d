package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// parseDurationExtended accepts Go duration strings plus d (24h) and w (7d)
// units, mixed freely: "90s", "7d", "1w2d3h", "1.5d", "-2w".
func parseDurationExtended(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var total time.Duration
	for s != "" {
		segment, rest, err := nextDurationSegment(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		d, err := segmentDuration(segment)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		total += d
		s = rest
	}
	return sign * total, nil
}

// nextDurationSegment splits off one number followed by its unit.
func nextDurationSegment(s string) (string, string, error) {
	i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i <= 0 {
		return "", "", fmt.Errorf("missing number")
	}
	j := strings.IndexFunc(s[i:], func(r rune) bool { return (r >= '0' && r <= '9') || r == '.' })
	if j == -1 {
		return s, "", nil
	}
	return s[:i+j], s[i+j:], nil
}

func segmentDuration(segment string) (time.Duration, error) {
	unit := segment[len(segment)-1]
	if unit != 'd' && unit != 'w' {
		return time.ParseDuration(segment)
	}
	n, err := strconv.ParseFloat(segment[:len(segment)-1], 64)
	if err != nil {
		return 0, err
	}
	scale := day
	if unit == 'w' {
		scale = week
	}
	return time.Duration(n * float64(scale)), nil
}
