package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runJobs(args[1:])
	case "add":
		return runAdd(args[1:])
	case "ui":
		return runUI(args[1:])
	case "status":
		return runStatus(args[1:])
	case "history":
		return runHistory(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("ffqueue: sequential ffmpeg job queue")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  ffqueue doctor")
	fmt.Println("  ffqueue add --name clip.mp4 --type optimize -- ffmpeg -i clip.mp4 -y clip_out.mp4")
	fmt.Println("  ffqueue run --jobs jobs.yaml")
	fmt.Println("  ffqueue ui")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       enqueue every job from a YAML file and process the queue")
	fmt.Println("  add       enqueue one inline job and process the queue")
	fmt.Println("  ui        interactive queue manager")
	fmt.Println("  status    show persisted queue (or history) state")
	fmt.Println("  history   export or clear archived jobs")
	fmt.Println("  doctor    run dependency and state directory checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Settings come from ffqueue.yaml (or --config) and FFQUEUE_* environment variables")
	fmt.Println("  - Jobs left running by a previous session are marked failed on the next start")
}
