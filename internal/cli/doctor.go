package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"ffqueue/internal/config"
	"ffqueue/internal/ffmpeg"
	"ffqueue/internal/statestore"
)

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := doctor(strings.TrimSpace(*configPath))
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func doctor(configPath string) doctorResult {
	checks := make([]doctorCheck, 0, 6)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		checks = append(checks, doctorCheck{Name: "config", OK: false, Message: err.Error()})
		return doctorResult{OK: false, Checks: checks}
	}
	checks = append(checks, doctorCheck{Name: "config", OK: true, Message: "store=" + cfg.Store + " state_dir=" + cfg.StateDir})

	dep := ffmpeg.ExecLauncher{Binaries: cfg.BinaryMap()}.DependencyStatus()
	checks = append(checks, doctorCheck{
		Name:    "dependency:ffmpeg",
		OK:      dep.FFmpegFound,
		Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, cfg.Binaries.FFmpeg),
	})
	// ffprobe is optional: only jobs that name it need it
	checks = append(checks, doctorCheck{
		Name:    "dependency:ffprobe",
		OK:      true,
		Message: dependencyMessage(dep.FFprobeFound, dep.FFprobePath, cfg.Binaries.FFprobe),
	})

	if cfg.Store != statestore.BackendMemory {
		dirOK, dirMessage := ensureWritableDir(cfg.StateDir)
		checks = append(checks, doctorCheck{Name: "directory:state", OK: dirOK, Message: dirMessage})

		checks = append(checks, lockCheck(cfg.StateDir))

		if dirOK {
			checks = append(checks, storeCheck(cfg))
		}
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return doctorResult{OK: ok, Checks: checks}
}

// lockCheck passes for a free lock or a live holder. A lock whose holder is
// gone fails; the next queue command reclaims it.
func lockCheck(stateDir string) doctorCheck {
	st, err := statestore.InspectLock(stateDir)
	switch {
	case err != nil:
		return doctorCheck{Name: "lock", OK: false, Message: err.Error()}
	case !st.Held:
		return doctorCheck{Name: "lock", OK: true, Message: "free"}
	case st.Stale:
		return doctorCheck{Name: "lock", OK: false, Message: "stale: " + st.Reason + " (reclaimed by the next run, add, ui or history clear)"}
	case st.Owner.PID > 0:
		return doctorCheck{Name: "lock", OK: true, Message: "held by " + st.Owner.String()}
	default:
		return doctorCheck{Name: "lock", OK: true, Message: "held (owner not written yet)"}
	}
}

func storeCheck(cfg config.Config) doctorCheck {
	store, err := statestore.Open(cfg.Store, cfg.StateDir)
	if err != nil {
		return doctorCheck{Name: "store:" + cfg.Store, OK: false, Message: err.Error()}
	}
	defer store.Close()
	jobs, history, err := loadPersisted(store)
	if err != nil {
		return doctorCheck{Name: "store:" + cfg.Store, OK: false, Message: err.Error()}
	}
	return doctorCheck{
		Name:    "store:" + cfg.Store,
		OK:      true,
		Message: fmt.Sprintf("%d queued, %d archived", len(jobs), len(history)),
	}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := statestore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "ffqueue-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
