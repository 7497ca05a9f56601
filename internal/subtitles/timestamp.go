package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// truncationSlack absorbs binary floating point error so that values such as
// 3661.234 (stored as 3661.23399999...) truncate to the millisecond they denote.
const truncationSlack = 1e-6

// maxSeconds is the largest offset whose millisecond count fits in an int64.
const maxSeconds = float64(math.MaxInt64 / 1000)

// Milliseconds converts fractional seconds to whole milliseconds, truncating.
// Negative and NaN inputs clamp to zero; +Inf and offsets beyond the int64
// range clamp to the largest representable millisecond.
func Milliseconds(seconds float64) int64 {
	switch {
	case math.IsNaN(seconds) || seconds <= 0:
		return 0
	case seconds >= maxSeconds:
		return math.MaxInt64 / 1000 * 1000
	}
	return int64(math.Floor(seconds*1000 + truncationSlack))
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Hours are zero padded to two
// digits but not bounded.
func FormatTimestamp(seconds float64) string {
	return formatMillis(Milliseconds(seconds), ',')
}

// FormatVTTTimestamp renders seconds as HH:MM:SS.mmm.
func FormatVTTTimestamp(seconds float64) string {
	return formatMillis(Milliseconds(seconds), '.')
}

func formatMillis(total int64, sep byte) string {
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm (or HH:MM:SS.mmm) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, fraction, ok := strings.Cut(strings.ReplaceAll(value, ".", ","), ",")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 || len(fraction) == 0 || len(fraction) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	secs, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(fraction + strings.Repeat("0", 3-len(fraction)))
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || secs < 0 || secs > 59 || millis < 0 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	total := int64(hours)*3_600_000 + int64(minutes)*60_000 + int64(secs)*1000 + int64(millis)
	return float64(total) / 1000, nil
}
