// Package progress turns ffmpeg diagnostic lines into a completion percentage.
package progress

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ffqueue/internal/model"
)

var (
	reDuration = regexp.MustCompile(`Duration:\s*([0-9]+:[0-9]{1,2}:[0-9]{1,2}(?:\.[0-9]+)?)`)
	reTime     = regexp.MustCompile(`time=\s*(-?[0-9]+:[0-9]{1,2}:[0-9]{1,2}(?:\.[0-9]+)?)`)
)

// ParseClock decomposes HH:MM:SS.frac into seconds. strconv is
// locale-invariant, so "." is always the fraction separator.
func ParseClock(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	total := float64(hours)*3600 + float64(minutes)*60 + seconds
	if negative {
		// ffmpeg reports time=-00:00:00.xx before the first frame is muxed.
		return 0, true
	}
	return total, true
}

func ParseDuration(line string) (float64, bool) {
	m := reDuration.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	return ParseClock(m[1])
}

func ParseTime(line string) (float64, bool) {
	m := reTime.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	return ParseClock(m[1])
}

func Percent(elapsed, total float64) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(elapsed / total * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Apply feeds one diagnostic line into the job record. It records the first
// Duration announcement and afterwards raises Progress/Info from time=
// updates. Progress never decreases. Reports whether progress or the
// expected duration changed.
func Apply(job *model.Job, line string) bool {
	if !job.HasExpectedDuration() {
		d, ok := ParseDuration(line)
		if !ok {
			return false
		}
		job.ExpectedDuration = &d
		return true
	}

	total := *job.ExpectedDuration
	if total <= 0 {
		return false
	}
	elapsed, ok := ParseTime(line)
	if !ok {
		return false
	}
	pct := Percent(elapsed, total)
	if pct <= job.Progress {
		return false
	}
	job.Progress = pct
	job.Info = FormatPercent(pct)
	return true
}

func FormatPercent(pct int) string {
	return fmt.Sprintf("%d%%", pct)
}
