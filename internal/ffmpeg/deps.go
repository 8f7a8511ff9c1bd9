package ffmpeg

import (
	"fmt"
	"os/exec"
)

type DependencyReport struct {
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

func (l ExecLauncher) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(l.Resolve("ffmpeg")); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath(l.Resolve("ffprobe")); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

func (l ExecLauncher) CheckDependencies() error {
	report := l.DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is not installed or not on PATH (set binaries.ffmpeg in config)")
	}
	return nil
}
