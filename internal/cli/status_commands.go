package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"ffqueue/internal/export"
	"ffqueue/internal/model"
	"ffqueue/internal/queue"
	"ffqueue/internal/statestore"
)

type statusResult struct {
	StateDir string        `json:"state_dir"`
	Store    string        `json:"store"`
	View     model.View    `json:"view"`
	Summary  queue.Summary `json:"summary"`
	Jobs     []model.Job   `json:"jobs"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	history := fs.Bool("history", false, "show archived jobs instead of the queue")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, store, err := openStoreReadOnly(strings.TrimSpace(*configPath))
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, historyJobs, err := loadPersisted(store)
	if err != nil {
		return err
	}
	res := statusResult{
		StateDir: cfg.StateDir,
		Store:    cfg.Store,
		View:     model.ViewActive,
		Summary:  queue.Summarize(jobs, len(historyJobs)),
		Jobs:     jobs,
	}
	if *history {
		res.View = model.ViewHistory
		res.Jobs = historyJobs
	}

	if *jsonOut {
		return printJSON(res)
	}
	fmt.Printf("state_dir: %s (%s)\n", res.StateDir, res.Store)
	fmt.Printf("queue: pending=%d processing=%d done=%d failed=%d cancelled=%d\n",
		res.Summary.Pending, res.Summary.Processing, res.Summary.Done, res.Summary.Failed, res.Summary.Cancelled)
	fmt.Printf("history: %d\n", res.Summary.History)
	if len(res.Jobs) == 0 {
		fmt.Printf("%s: empty\n", res.View)
		return nil
	}
	fmt.Println()
	for _, job := range res.Jobs {
		fmt.Printf("%-8s %-10s %3d%%  %-24s %s\n",
			shortID(job.ID), job.Status, job.Progress, truncateRunes(job.Info, 24), job.DisplayName())
	}
	return nil
}

func runHistory(args []string) error {
	if len(args) == 0 {
		printHistoryUsage()
		return errors.New("history subcommand required")
	}
	switch args[0] {
	case "export":
		return runHistoryExport(args[1:])
	case "clear":
		return runHistoryClear(args[1:])
	case "help", "-h", "--help":
		printHistoryUsage()
		return nil
	default:
		printHistoryUsage()
		return fmt.Errorf("unknown history subcommand %q", args[0])
	}
}

func printHistoryUsage() {
	fmt.Println("usage:")
	fmt.Println("  ffqueue history export --out history.xlsx [--queue]")
	fmt.Println("  ffqueue history clear [--yes]")
}

func runHistoryExport(args []string) error {
	fs := flag.NewFlagSet("history export", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	out := fs.String("out", "", "target file (.xlsx or .csv)")
	fromQueue := fs.Bool("queue", false, "export the active queue instead of history")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := strings.TrimSpace(*out)
	if target == "" {
		fs.Usage()
		return errors.New("--out is required")
	}

	_, store, err := openStoreReadOnly(strings.TrimSpace(*configPath))
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, history, err := loadPersisted(store)
	if err != nil {
		return err
	}
	rows, sheet := history, "History"
	if *fromQueue {
		rows, sheet = jobs, "Queue"
	}
	format, err := export.ToFile(target, sheet, rows)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(map[string]any{"path": target, "format": format, "rows": len(rows)})
	}
	fmt.Printf("exported %d job(s) to %s (%s)\n", len(rows), target, format)
	return nil
}

func runHistoryClear(args []string) error {
	fs := flag.NewFlagSet("history clear", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (default ffqueue.yaml when present)")
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := openRuntime(runtimeOptions{ConfigPath: strings.TrimSpace(*configPath)})
	if err != nil {
		return err
	}
	defer rt.Close()

	m := rt.manager
	m.Restore()
	n := len(m.History())
	if n == 0 {
		fmt.Println("history: already empty")
		return nil
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("Clear %d archived job(s)? [y/N]: ", n))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("history clear cancelled")
			return nil
		}
	}
	m.ClearHistory()
	fmt.Printf("history cleared: %d job(s) removed\n", n)
	return nil
}

func loadPersisted(store statestore.Store) ([]model.Job, []model.Job, error) {
	jobs := []model.Job{}
	if _, err := store.Load(statestore.KeyQueue, &jobs); err != nil {
		return nil, nil, fmt.Errorf("load queue: %w", err)
	}
	history := []model.Job{}
	if _, err := store.Load(statestore.KeyHistory, &history); err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	return jobs, history, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
