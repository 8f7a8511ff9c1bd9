package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusPending},
		{StatusPending, StatusProcessing},
		{StatusProcessing, StatusDone},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusPending, StatusDone},
		{StatusPending, StatusFailed},
		{StatusDone, StatusProcessing},
		{StatusFailed, StatusPending},
		{StatusCancelled, StatusProcessing},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStatus_BlocksIllegalTransition(t *testing.T) {
	job := Job{
		ID:     "job-1",
		Name:   "a.mp4",
		Status: StatusPending,
	}

	if err := TransitionJobStatus(&job, StatusDone, InfoDone); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if job.Status != StatusPending {
		t.Fatalf("status changed on rejected transition: %s", job.Status)
	}
}

func TestMarkInterrupted(t *testing.T) {
	cases := []struct {
		status  string
		changed bool
		want    string
	}{
		{StatusPending, true, StatusFailed},
		{StatusProcessing, true, StatusFailed},
		{StatusDone, false, StatusDone},
		{StatusCancelled, false, StatusCancelled},
	}

	for _, tc := range cases {
		job := Job{Status: tc.status, Progress: 40, Info: "40%"}
		if got := MarkInterrupted(&job); got != tc.changed {
			t.Fatalf("%s: changed=%v want %v", tc.status, got, tc.changed)
		}
		if job.Status != tc.want {
			t.Fatalf("%s: status=%s want %s", tc.status, job.Status, tc.want)
		}
		if tc.changed && (job.Info != InfoInterrupted || job.Progress != 0) {
			t.Fatalf("%s: unexpected interrupted record %+v", tc.status, job)
		}
	}
}
