package progress

import (
	"math"
	"testing"

	"ffqueue/internal/model"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"00:00:10.00", 10, true},
		{"01:02:03.5", 3723.5, true},
		{"00:01:00", 60, true},
		{"-00:00:00.02", 0, true},
		{"10.5", 0, false},
		{"aa:00:00", 0, false},
		{"00:00:1,5", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseClock(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseClock(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseDurationAndTime(t *testing.T) {
	d, ok := ParseDuration("  Duration: 00:03:20.48, start: 0.000000, bitrate: 1205 kb/s")
	if !ok || math.Abs(d-200.48) > 1e-9 {
		t.Fatalf("unexpected duration %v %v", d, ok)
	}
	if _, ok := ParseDuration("  Duration: N/A, bitrate: N/A"); ok {
		t.Fatalf("N/A duration must not match")
	}

	el, ok := ParseTime("frame=  120 fps= 30 q=28.0 size=     512kB time=00:00:05.00 bitrate= 838.9kbits/s speed=1.2x")
	if !ok || el != 5 {
		t.Fatalf("unexpected time %v %v", el, ok)
	}
	if _, ok := ParseTime("Stream mapping:"); ok {
		t.Fatalf("unexpected match on plain line")
	}
}

func TestPercentClamps(t *testing.T) {
	cases := []struct {
		elapsed, total float64
		want           int
	}{
		{5, 10, 50},
		{0, 10, 0},
		{12, 10, 100},
		{3.333, 10, 33},
		{5, 0, 0},
		{-1, 10, 0},
	}
	for _, tc := range cases {
		if got := Percent(tc.elapsed, tc.total); got != tc.want {
			t.Fatalf("Percent(%v,%v)=%d want %d", tc.elapsed, tc.total, got, tc.want)
		}
	}
}

func TestApply_DurationThenTime(t *testing.T) {
	job := model.Job{Status: model.StatusProcessing}

	if Apply(&job, "time=00:00:05.00") {
		t.Fatalf("time before duration must be ignored")
	}
	if !Apply(&job, "Duration: 00:00:10.00, start: 0.0") {
		t.Fatalf("expected duration to be recorded")
	}
	if Apply(&job, "Duration: 00:00:99.00") {
		t.Fatalf("duration must only be recorded once")
	}
	if *job.ExpectedDuration != 10 {
		t.Fatalf("unexpected expected duration %v", *job.ExpectedDuration)
	}
	if !Apply(&job, "frame=1 time=00:00:05.00 speed=1x") {
		t.Fatalf("expected progress change")
	}
	if job.Progress != 50 || job.Info != "50%" {
		t.Fatalf("unexpected progress %d %q", job.Progress, job.Info)
	}
}

func TestApply_ProgressIsMonotonic(t *testing.T) {
	job := model.Job{Status: model.StatusProcessing}
	Apply(&job, "Duration: 00:01:40.00")

	last := 0
	for _, line := range []string{
		"time=00:00:10.00",
		"some unrelated warning",
		"time=00:00:20.00",
		"time=00:00:15.00",
		"time=00:00:55.00",
		"time=00:02:00.00",
	} {
		Apply(&job, line)
		if job.Progress < last {
			t.Fatalf("progress decreased from %d to %d on %q", last, job.Progress, line)
		}
		last = job.Progress
	}
	if job.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", job.Progress)
	}
}

func TestApply_ZeroDurationNeverProgresses(t *testing.T) {
	job := model.Job{Status: model.StatusProcessing}
	Apply(&job, "Duration: 00:00:00.00")
	if Apply(&job, "time=00:00:05.00") || job.Progress != 0 {
		t.Fatalf("zero duration must not drive progress: %+v", job)
	}
}
