package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ffqueue/internal/jobfile"
	"ffqueue/internal/model"
	"ffqueue/internal/queue"
)

type batchResult struct {
	Restored    queue.RestoreReport `json:"restored"`
	Jobs        []model.Job         `json:"jobs"`
	Summary     queue.Summary       `json:"summary"`
	Interrupted bool                `json:"interrupted"`
}

func runJobs(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	jobsPath := fs.String("jobs", "", "YAML file with a jobs: list")
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	ephemeral := fs.Bool("ephemeral", false, "keep queue state in memory only")
	progress := fs.Bool("progress", true, "show live progress line")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*jobsPath) == "" {
		fs.Usage()
		return errors.New("--jobs is required")
	}

	reqs, err := jobfile.Load(strings.TrimSpace(*jobsPath))
	if err != nil {
		return err
	}
	return driveBatch(runtimeOptions{
		ConfigPath: strings.TrimSpace(*configPath),
		Ephemeral:  *ephemeral,
		Quiet:      *progress && !*jsonOut,
	}, reqs, *progress && !*jsonOut, *jsonOut)
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	jobType := fs.String("type", model.TypeConvert, "job type: optimize|trim|convert|merge|audio")
	output := fs.String("output", "", "output path (informational)")
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	ephemeral := fs.Bool("ephemeral", false, "keep queue state in memory only")
	progress := fs.Bool("progress", true, "show live progress line")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 || strings.TrimSpace(rest[0]) == "" {
		fs.Usage()
		return errors.New("command is required: ffqueue add [flags] -- <command> [args...]")
	}
	req := model.Request{
		Name:    firstNonEmpty(*name, rest[len(rest)-1]),
		Type:    strings.TrimSpace(*jobType),
		Command: strings.TrimSpace(rest[0]),
		Args:    append([]string{}, rest[1:]...),
		Output:  strings.TrimSpace(*output),
	}
	return driveBatch(runtimeOptions{
		ConfigPath: strings.TrimSpace(*configPath),
		Ephemeral:  *ephemeral,
		Quiet:      *progress && !*jsonOut,
	}, []model.Request{req}, *progress && !*jsonOut, *jsonOut)
}

// driveBatch restores state, enqueues reqs and blocks until the queue is
// idle. An interrupt signal cancels the running job and leaves the rest
// pending for the next session.
func driveBatch(opts runtimeOptions, reqs []model.Request, showProgress, jsonOut bool) error {
	rt, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.launcher.CheckDependencies(); err != nil {
		rt.logger.Warn("dependency check failed", "error", err)
	}

	m := rt.manager
	res := batchResult{Restored: m.Restore()}
	if res.Restored.Interrupted > 0 && !jsonOut {
		fmt.Printf("restored: %d interrupted job(s) marked failed\n", res.Restored.Interrupted)
	}
	if !jsonOut {
		for _, path := range res.Restored.Quarantined {
			fmt.Printf("warning: unreadable state moved to %s\n", path)
		}
		for _, key := range res.Restored.Unreadable {
			fmt.Printf("warning: %s could not be read and will not be saved this session\n", key)
		}
	}

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, m.Enqueue(req))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	live := newLiveProgress(showProgress, m, ids)
	live.Start()
	if err := m.Wait(ctx); err != nil {
		res.Interrupted = true
		m.Shutdown()
	}
	live.Stop()

	failed := 0
	for _, id := range ids {
		job, ok := m.Job(id)
		if !ok {
			continue
		}
		res.Jobs = append(res.Jobs, job)
		if job.Status == model.StatusFailed {
			failed++
		}
	}
	res.Summary = m.Summary()

	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printBatchResult(res)
	}
	if res.Interrupted {
		return errors.New("interrupted")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(ids))
	}
	return nil
}

func printBatchResult(res batchResult) {
	for _, job := range res.Jobs {
		fmt.Printf("%-10s %-26s %s\n", job.Status, truncateRunes(job.Info, 26), job.DisplayName())
	}
	fmt.Println("queue summary")
	fmt.Printf("done: %d\n", res.Summary.Done)
	fmt.Printf("failed: %d\n", res.Summary.Failed)
	fmt.Printf("cancelled: %d\n", res.Summary.Cancelled)
	fmt.Printf("pending: %d\n", res.Summary.Pending)
	fmt.Printf("history: %d\n", res.Summary.History)
	if res.Interrupted {
		fmt.Println("next: pending jobs are marked interrupted on the next start; use `ffqueue ui` to retry them")
	}
}
