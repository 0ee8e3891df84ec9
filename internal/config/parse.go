package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses an optional, non-negative Go duration.
// Empty input yields 0. Errors are prefixed with the config path.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

var (
	reHHMM   = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reDigits = regexp.MustCompile(`^\d+$`)
)

// ParsePeriod converts a task period into scheduler milliseconds.
//
// Supported forms:
//   - Bare milliseconds: "250"
//   - Go duration: "500ms", "2s", "1m30s"
//   - Interval: "@every 5s" (same as the bare duration)
//   - HH:MM: "00:05" (5 minutes), "01:30" (90 minutes)
//
// The result must be at least 1ms and fit the 32-bit millisecond clock.
func ParsePeriod(raw string) (uint32, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("period required")
	}

	if strings.HasPrefix(strings.ToLower(s), "@every") {
		s = strings.TrimSpace(s[len("@every"):])
		if s == "" {
			return 0, fmt.Errorf("duration required after '@every'")
		}
	}

	if reDigits.MatchString(s) {
		ms, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("period %q overflows the millisecond clock", raw)
		}
		if ms == 0 {
			return 0, fmt.Errorf("period must be > 0")
		}
		return uint32(ms), nil
	}

	var d time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", raw)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid period %q (use '500ms', '@every 2s', 'HH:MM' or milliseconds)", raw)
		}
	}
	return durationToMillis(raw, d)
}

func durationToMillis(raw string, d time.Duration) (uint32, error) {
	if d <= 0 {
		return 0, fmt.Errorf("period must be > 0")
	}
	ms := d / time.Millisecond
	if ms == 0 {
		return 0, fmt.Errorf("period %q is below the 1ms tick", raw)
	}
	if ms > math.MaxUint32 {
		return 0, fmt.Errorf("period %q overflows the millisecond clock", raw)
	}
	return uint32(ms), nil
}
